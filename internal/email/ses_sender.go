package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	log "github.com/sirupsen/logrus"
)

// SESAPI is the subset of the SES v2 client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends raw MIME messages through Amazon SES.
type SESSender struct {
	client SESAPI
	from   string
}

// NewSESSender creates a SESSender.
func NewSESSender(client SESAPI, from string) *SESSender {
	return &SESSender{client: client, from: from}
}

// Send delivers rawMessage as-is; SES takes headers and attachments from the raw bytes.
func (s *SESSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: rawMessage},
		},
	})
	if err != nil {
		return fmt.Errorf("ses error: %w", err)
	}
	log.Debugf("Email sent via SES (Subject: %s, MessageId: %s)", subject, aws.ToString(out.MessageId))
	return nil
}
