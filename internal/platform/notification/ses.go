package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"
)

const charsetUTF8 = "UTF-8"

// sesAPI is the subset of the SES v2 client used for delivery.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers plain-text mail through Amazon SES.
type SESSender struct {
	client sesAPI
	from   string
	logger zerolog.Logger
}

// NewSESSender loads the default AWS credential chain for region and returns
// a sender that mails from fromEmail. fromName is optional.
func NewSESSender(ctx context.Context, region, fromEmail, fromName string, logger zerolog.Logger) (*SESSender, error) {
	if fromEmail == "" {
		return nil, errors.New("ses: from address is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(cfg), fromEmail, fromName, logger), nil
}

func newSESSender(client sesAPI, fromEmail, fromName string, logger zerolog.Logger) *SESSender {
	return &SESSender{
		client: client,
		from:   formatAddress(fromEmail, fromName),
		logger: logger.With().Str("component", "ses").Logger(),
	}
}

func (s *SESSender) SendEmail(ctx context.Context, to, subject, body string) error {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String(charsetUTF8)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String(charsetUTF8)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses: send to %s: %w", to, err)
	}
	s.logger.Debug().
		Str("to", to).
		Str("message_id", aws.ToString(out.MessageId)).
		Msg("email sent")
	return nil
}

func formatAddress(email, name string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
