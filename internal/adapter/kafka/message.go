package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/goccy/go-json"
	kafkago "github.com/segmentio/kafka-go"
)

const dateLayout = "2006-01-02"

// accidentMessage is the JSON payload of one accident record on the topic.
type accidentMessage struct {
	Date   string `json:"date"`
	Year   int    `json:"year,omitempty"`
	State  string `json:"state"`
	County string `json:"county,omitempty"`
	Count  int    `json:"count"`
}

// serializeToMessage encodes an accident record keyed by state so one
// state's records stay on one partition.
func serializeToMessage(rec domain.AccidentRecord) (kafkago.Message, error) {
	data, err := json.Marshal(accidentMessage{
		Date:   rec.Date.UTC().Format(dateLayout),
		Year:   rec.Year,
		State:  rec.State,
		County: rec.County,
		Count:  rec.Count,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize accident record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.State),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "record_type", Value: []byte("accident")},
		},
	}, nil
}

// parseMessage decodes an accident message. Year defaults to the date's year.
func parseMessage(msg kafkago.Message) (domain.AccidentRecord, error) {
	var m accidentMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return domain.AccidentRecord{}, fmt.Errorf("decode accident message: %w", err)
	}
	d, err := time.Parse(dateLayout, m.Date)
	if err != nil {
		if d, err = time.Parse(time.RFC3339, m.Date); err != nil {
			return domain.AccidentRecord{}, fmt.Errorf("decode accident date %q: %w", m.Date, err)
		}
	}
	state := domain.NormalizeState(m.State)
	if state == "" {
		return domain.AccidentRecord{}, errors.New("accident message has no state")
	}
	if m.Count < 0 {
		return domain.AccidentRecord{}, fmt.Errorf("accident message has negative count %d", m.Count)
	}
	year := m.Year
	if year == 0 {
		year = d.Year()
	}
	return domain.AccidentRecord{
		Date:   d.UTC(),
		Year:   year,
		State:  state,
		County: m.County,
		Count:  m.Count,
	}, nil
}
