package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContactMessage keeps whatever fields the contact form submitted next to
// the server-assigned id, timestamp and caller address. Server fields win
// over submitted fields of the same name.
type ContactMessage struct {
	ID        int64
	Fields    map[string]any
	CreatedAt time.Time
	IP        string
}

// Field returns a submitted field as a string, or "" when absent.
func (c ContactMessage) Field(name string) string {
	v, ok := c.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (c ContactMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Fields)+3)
	for k, v := range c.Fields {
		out[k] = v
	}
	out["id"] = c.ID
	out["createdAt"] = c.CreatedAt
	out["ip"] = c.IP
	return json.Marshal(out)
}

func (c *ContactMessage) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var fixed struct {
		ID        int64     `json:"id"`
		CreatedAt time.Time `json:"createdAt"`
		IP        string    `json:"ip"`
	}
	if err := json.Unmarshal(data, &fixed); err != nil {
		return err
	}

	delete(raw, "id")
	delete(raw, "createdAt")
	delete(raw, "ip")

	c.ID = fixed.ID
	c.CreatedAt = fixed.CreatedAt
	c.IP = fixed.IP
	c.Fields = raw
	return nil
}

type Subscriber struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	SubscribedAt time.Time `json:"subscribedAt"`
	IP           string    `json:"ip"`
}
