package entities

// BusinessRecord is the attribute snapshot of one business object
// (an inventory item, an order) as last ingested. The numeric
// attributes feed the embedding index; the rest ride along for
// insight metadata.
type BusinessRecord struct {
	ID         string
	Attributes map[string]interface{}
}
