package mailer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/diagnosis/refcheck/pkg/logger"
)

// DevSender prints messages instead of delivering them.
type DevSender struct {
	out io.Writer
}

func NewDevSender(out io.Writer) *DevSender {
	if out == nil {
		out = os.Stdout
	}
	return &DevSender{out: out}
}

func (d *DevSender) Send(ctx context.Context, toEmail, toName, subject, text, _ string) (string, error) {
	logger.InfoContext(ctx, "📧 [DEV MAIL]", "to", toEmail, "name", toName, "subject", subject)

	fmt.Fprintf(d.out, "\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 EMAIL (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: %s\n"+
		"\n"+
		"%s"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, toName, subject, text)

	return "", nil
}
