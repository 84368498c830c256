package consult

import (
	"fmt"
	"strings"
)

// violations accumulates rule failures so a payload reports all of them at once.
type violations []string

func (v *violations) blank(value, format string) {
	if strings.TrimSpace(value) == "" {
		*v = append(*v, fmt.Sprintf(format, value))
	}
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Errors: v}
}

func validateAdvisor(p AdvisorPayload) error {
	var v violations
	v.blank(p.Name, "Advisor name='%s' cannot be empty.")
	v.blank(p.Credentials, "Advisor credentials='%s' cannot be empty.")
	return v.err()
}

func validateConsultation(p ConsultationPayload) error {
	var v violations
	v.blank(p.Details, "Consultation details='%s' cannot be empty.")
	v.blank(p.ClientName, "Client's name='%s' cannot be empty.")
	v.blank(p.ClientEmail, "Client's email='%s' cannot be empty.")
	return v.err()
}

func validateConsultationUpdate(u ConsultationUpdate) error {
	var v violations
	if u.Details != nil {
		v.blank(*u.Details, "Consultation details='%s' cannot be empty.")
	}
	if u.ClientName != nil {
		v.blank(*u.ClientName, "Client's name='%s' cannot be empty.")
	}
	if u.ClientEmail != nil {
		v.blank(*u.ClientEmail, "Client's email='%s' cannot be empty.")
	}
	return v.err()
}

func validateFeedback(text string) error {
	var v violations
	v.blank(text, "Feedback text='%s' cannot be empty.")
	return v.err()
}
