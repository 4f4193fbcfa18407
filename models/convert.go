package models

import (
	"encoding/json"
	"fmt"
)

// toPayload turns a typed model into the opaque map stored on a Record
func toPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

func fromPayload(r Record, v any) error {
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	return nil
}

func (u User) ToRecord() (Record, error) {
	payload, err := toPayload(u)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: u.ID, CreatedAt: u.CreatedAt, Data: payload}, nil
}

func UserFromRecord(r Record) (User, error) {
	var u User
	if err := fromPayload(r, &u); err != nil {
		return User{}, err
	}
	u.ID = r.ID
	u.CreatedAt = r.CreatedAt
	return u, nil
}

func (c Channel) ToRecord() (Record, error) {
	payload, err := toPayload(c)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: c.ID, CreatedAt: c.CreatedAt, Data: payload}, nil
}

func ChannelFromRecord(r Record) (Channel, error) {
	var c Channel
	if err := fromPayload(r, &c); err != nil {
		return Channel{}, err
	}
	c.ID = r.ID
	c.CreatedAt = r.CreatedAt
	return c, nil
}

func (c Content) ToRecord() (Record, error) {
	payload, err := toPayload(c)
	if err != nil {
		return Record{}, err
	}
	return Record{ID: c.ID, CreatedAt: c.CreatedAt, Data: payload}, nil
}

func ContentFromRecord(r Record) (Content, error) {
	var c Content
	if err := fromPayload(r, &c); err != nil {
		return Content{}, err
	}
	c.ID = r.ID
	c.CreatedAt = r.CreatedAt
	return c, nil
}

// ContentsFromRecords decodes a page of records, failing on the first bad one
func ContentsFromRecords(records []Record) ([]Content, error) {
	out := make([]Content, 0, len(records))
	for _, r := range records {
		c, err := ContentFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func ChannelsFromRecords(records []Record) ([]Channel, error) {
	out := make([]Channel, 0, len(records))
	for _, r := range records {
		c, err := ChannelFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func UsersFromRecords(records []Record) ([]User, error) {
	out := make([]User, 0, len(records))
	for _, r := range records {
		u, err := UserFromRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
