package eventbus

import "encoding/json"

func marshalEvent(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

func unmarshalEvent(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, err
	}
	return evt, nil
}
