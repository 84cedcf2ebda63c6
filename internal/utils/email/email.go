package email

import (
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/kwachapay/ledger-service/internal/config"
	"github.com/kwachapay/ledger-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Sender delivers operational notices to the ops inbox
type Sender struct {
	host string
	port string
	user string
	pass string
	from string
	to   string
	log  *logrus.Logger
}

// NewSender initializes a new sender; returns nil when no ops inbox
// is configured, which disables notices.
func NewSender(cfg *config.Config, log *logrus.Logger) *Sender {
	if cfg.SMTPHost == "" || cfg.OpsEmail == "" {
		return nil
	}
	return &Sender{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
		from: cfg.SMTPFrom,
		to:   cfg.OpsEmail,
		log:  log,
	}
}

func (s *Sender) send(subject, body string) {
	e := email.NewEmail()
	e.From = s.from
	e.To = []string{s.to}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	if err := e.Send(addr, auth); err != nil {
		s.log.WithError(err).Warnf("Failed to send notice: %s", subject)
	}
}

// LoanDefaulted notifies ops that collateral was seized.
func (s *Sender) LoanDefaulted(loan models.Loan) {
	s.send(
		fmt.Sprintf("Loan %d defaulted", loan.LoanID),
		fmt.Sprintf("Identity %s defaulted on loan %d.\nPrincipal: %d\nRepaid: %d\nCollateral seized: %d\n",
			loan.IdentityID, loan.LoanID, loan.Principal, loan.RepaidAmount, loan.Collateral),
	)
}

// FeesWithdrawn notifies ops of a fee withdrawal.
func (s *Sender) FeesWithdrawn(to string, amount int64) {
	s.send(
		"Fees withdrawn",
		fmt.Sprintf("Accumulated fees of %d were withdrawn to %s.\n", amount, to),
	)
}
