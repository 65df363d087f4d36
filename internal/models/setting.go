package models

// Setting is a runtime override stored in the settings collection.
type Setting struct {
	Key    string `bson:"key" json:"key"`
	Value  any    `bson:"value" json:"value"`
	Public bool   `bson:"public" json:"public"`
}
