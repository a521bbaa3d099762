// Package filter recognizes administrative notices generated by the
// mail-receiving platform so they are not routed to chat channels.
package filter

// Notice is the signature of a provider-generated notice. A message is a
// notice only when both its decoded sender and subject equal the signature
// exactly.
type Notice struct {
	Sender  string
	Subject string
}

// Skip reports whether a message with the given decoded sender and subject
// matches the notice signature. An empty signature field never matches.
func (n Notice) Skip(sender, subject string) bool {
	if n.Sender == "" || n.Subject == "" {
		return false
	}
	return sender == n.Sender && subject == n.Subject
}
