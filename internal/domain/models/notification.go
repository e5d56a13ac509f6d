// internal/domain/models/notification.go
package models

import "time"

// DefaultNotificationURL is the deep link used when a push omits one.
const DefaultNotificationURL = "/"

// TimestampLayout is the fixed-width UTC layout used for
// NotificationRecord.Timestamp (the same shape as a JavaScript ISO string).
// Fixed width keeps lexicographic order equal to time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NotificationRecord is one push notification as the offline agent stores it.
//
// ID is the record key. Writing a record whose ID already exists replaces it,
// so two pushes with the same data.id collapse into one record (last write
// wins). When the sender omits an ID the receipt time in unix milliseconds is
// used, which is not guaranteed to be unique across devices.
type NotificationRecord struct {
	ID        string `json:"id" bson:"_id" msgpack:"id"`
	Title     string `json:"title" bson:"title" msgpack:"title"`
	Body      string `json:"body" bson:"body" msgpack:"body"`
	URL       string `json:"url" bson:"url" msgpack:"url"`
	Timestamp string `json:"timestamp" bson:"timestamp" msgpack:"timestamp"` // TimestampLayout, set at receipt
	Read      bool   `json:"read" bson:"read" msgpack:"read"`
}

// ReceivedAt parses Timestamp. The zero time is returned for records whose
// timestamp is missing or malformed.
func (n NotificationRecord) ReceivedAt() time.Time {
	t, err := time.Parse(time.RFC3339, n.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
