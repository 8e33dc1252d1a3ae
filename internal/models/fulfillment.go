package models

// StepResult is the outcome of a single best-effort fulfillment step.
type StepResult struct {
	OK  bool
	Err error
}

func StepOK() StepResult { return StepResult{OK: true} }

func StepFailed(err error) StepResult { return StepResult{Err: err} }

// FulfillmentOutcome is composed per request and never persisted.
type FulfillmentOutcome struct {
	Success               bool   `json:"success"`
	Reference             string `json:"reference"`
	TicketCode            string `json:"ticket_code,omitempty"`
	ArtifactPath          string `json:"qr_code_path,omitempty"`
	CodeArtifactGenerated bool   `json:"code_artifact_generated"`
	NotificationSent      bool   `json:"notification_sent"`
	AlreadyFulfilled      bool   `json:"already_fulfilled"`
	FailureReason         string `json:"failure_reason,omitempty"`
}

// Apply folds the best-effort step results into the outcome flags.
func (o *FulfillmentOutcome) Apply(artifact, notification StepResult) {
	o.CodeArtifactGenerated = artifact.OK
	o.NotificationSent = notification.OK
}

// TicketNotification is the payload handed to the notification sender.
type TicketNotification struct {
	Recipient     string `json:"recipient"`
	EventTitle    string `json:"event_title"`
	EventDate     string `json:"event_date"`
	EventLocation string `json:"event_location"`
	TicketCode    string `json:"ticket_code"`
	ArtifactPath  string `json:"-"`
	Attachment    []byte `json:"attachment,omitempty"`
}
