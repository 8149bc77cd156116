package mail

import "log"

// Sender hands outbound mail to whatever delivery channel is configured.
// Actual SMTP delivery sits outside this service; the default sender
// just records what would have been sent.
type Sender interface {
	Send(to, subject, body string) error
}

type logSender struct{}

func (logSender) Send(to, subject, body string) error {
	log.Printf("mail: to=%s subject=%q", to, subject)
	return nil
}

var sender Sender = logSender{}

// SetSender swaps the delivery channel (used by tests and deployments
// that wire a real provider).
func SetSender(s Sender) {
	sender = s
}

// Send dispatches mail best-effort. Failures are logged and swallowed;
// they never block the operation that triggered the mail.
func Send(to, subject, body string) {
	if err := sender.Send(to, subject, body); err != nil {
		log.Printf("mail: delivery to %s failed: %v", to, err)
	}
}
