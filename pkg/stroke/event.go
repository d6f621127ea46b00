package stroke

const (
	EventInsert = "insert"
	EventDelete = "delete"
)

// Event is one change on the stroke stream: an inserted record or a deleted id.
type Event struct {
	Type   string  `json:"type"`
	Record *Record `json:"record,omitempty"`
	ID     string  `json:"id,omitempty"`
}

func InsertEvent(r Record) Event {
	return Event{Type: EventInsert, Record: &r}
}

func DeleteEvent(id string) Event {
	return Event{Type: EventDelete, ID: id}
}
