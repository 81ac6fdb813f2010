package main

var (
	ContactTitle    = "Let's work together"
	ContactSubtitle = "Have a project in mind? Send me a message and I'll get back to you."

	ContactSuccessTitle  = "Message sent successfully!"
	ContactSuccessDetail = "I'll get back to you within 24 hours."
	ContactErrorTitle    = "Message not sent"
	ContactBusy          = "Your message is still being sent. Please wait a moment."
	ContactSending       = "Sending..."
	ContactSend          = "Send Message"

	FieldNameInvalid    = "Please enter at least 2 characters."
	FieldNameMultiline  = "Please keep your name on a single line."
	FieldEmailInvalid   = "Please enter a valid email address."
	FieldMessageInvalid = "Please write at least 10 characters."

	AdminInvalidCredentials = "Invalid credentials"
	AdminStatsFailed        = "Failed to load statistics"
	AdminVisitorsFailed     = "Failed to load visitors"
	AdminContactsFailed     = "Failed to load contact submissions"

	PrivacyNotice = `This site records page views with a salted hash of your IP address, your
	browser's user agent and the page you visited. Raw IP addresses are never stored.
	Requests carrying a "Do Not Track" header are not recorded at all.
	Visitor records are deleted automatically once they pass the retention period.
	Contact form submissions store your name and email only when the message was delivered.`
)

var uiCopy = map[string]string{
	"contact.title":          ContactTitle,
	"contact.subtitle":       ContactSubtitle,
	"contact.success.title":  ContactSuccessTitle,
	"contact.success.detail": ContactSuccessDetail,
	"contact.error.title":    ContactErrorTitle,
	"contact.sending":        ContactSending,
	"contact.send":           ContactSend,
}

// copyFor looks up template copy by key.
func copyFor(key string) string {
	return uiCopy[key]
}
