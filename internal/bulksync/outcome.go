package bulksync

import "time"

// Kind classifies the result of processing one record.
type Kind string

const (
	KindSuccess           Kind = "success"
	KindIntegrityFailure  Kind = "integrity_failure"
	KindMalformed         Kind = "malformed"
	KindInvalidIdentifier Kind = "invalid_identifier"
	KindAccessDenied      Kind = "access_denied"
	KindDuplicate         Kind = "duplicate"
	KindProcessingError   Kind = "processing_error"
)

// Caller-facing messages. They never carry internal error text.
const (
	MsgAck             = "Form received and processed successfully"
	MsgChecksum        = "Checksum verification failed - data may be corrupted"
	MsgDecrypt         = "Failed to decrypt form data"
	MsgStructure       = "Invalid form data structure"
	MsgInvalidUniqueID = "Invalid survey unique ID format"
	MsgAccessDenied    = "School access denied"
	MsgDuplicate       = "Duplicate survey"
	MsgProcessing      = "Failed to process form"
	MsgMissingField    = "Missing required field: "
)

// Outcome is the per-item result. Exactly one is produced per input item.
type Outcome struct {
	LocalID    string
	Kind       Kind
	SurveyID   string
	Timestamp  time.Time
	Ack        string
	Message    string
	ExistingID string
}

// Success reports whether the record was persisted by this call.
func (o Outcome) Success() bool { return o.Kind == KindSuccess }

func failure(localID string, kind Kind, msg string) Outcome {
	return Outcome{LocalID: localID, Kind: kind, Message: msg}
}
