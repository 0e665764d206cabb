package notify

import (
	"context"
	"fmt"
	"net/http"

	"assessment-service/internal/app"
	"assessment-service/internal/domain"
	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// SendGridNotifier e-mails achievements. Users are addressed as
// <userID>@<emailDomain> since the identity directory owns real addresses.
type SendGridNotifier struct {
	key         string
	host        string
	from        *sgmail.Email
	emailDomain string
}

var _ app.Notifier = (*SendGridNotifier)(nil)

func NewSendGridNotifier(key, fromName, fromEmail, emailDomain string) *SendGridNotifier {
	return &SendGridNotifier{
		key:         key,
		host:        defaultHost,
		from:        sgmail.NewEmail(fromName, fromEmail),
		emailDomain: emailDomain,
	}
}

// WithHost points the notifier at another API host (tests, regional endpoints).
func (n *SendGridNotifier) WithHost(host string) *SendGridNotifier {
	n.host = host
	return n
}

func (n *SendGridNotifier) Notify(ctx context.Context, a domain.Activity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(n.key, endpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(a))

	res, err := sendgrid.API(req)
	if err != nil {
		return errors.Wrap(err, "sendgrid request")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sendgrid responded %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (n *SendGridNotifier) prepare(a domain.Activity) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = subjectFor(a.Kind)
	p.AddTos(sgmail.NewEmail(a.UserID, a.UserID+"@"+n.emailDomain))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", a.Message))
	return m
}

func subjectFor(kind domain.ActivityKind) string {
	switch kind {
	case domain.ActivityExamPassed:
		return "You passed your exam"
	case domain.ActivityExamResultPublished:
		return "Your exam result is available"
	case domain.ActivityCertificateIssued:
		return "Your certificate has been issued"
	case domain.ActivityQuizPassed:
		return "Quiz passed"
	case domain.ActivityPuzzleCompleted:
		return "Puzzle solved"
	case domain.ActivityPuzzlePersonalBest:
		return "New personal best"
	default:
		return fmt.Sprintf("New activity: %s", kind)
	}
}
