// Package validate runs the tri-state quality checks applied to every merged
// contact before it is scored.
package validate

import (
	"context"
	"net"
	"strings"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Check names. They double as the penalty keys of the scoring table.
const (
	CheckEmailSyntax  = "email_syntax"
	CheckEmailDomain  = "email_domain"
	CheckEmailMX      = "email_mx"
	CheckEmailMailbox = "email_mailbox"
	CheckPhone        = "phone"
	CheckName         = "name"
	CheckNameEmail    = "name_email"
)

// CheckNames lists every check in the order it is reported.
var CheckNames = []string{
	CheckEmailSyntax, CheckEmailDomain, CheckEmailMX, CheckEmailMailbox,
	CheckPhone, CheckName, CheckNameEmail,
}

const (
	maxNameLength       = 100
	nameEmailSimilarity = 0.85
)

// Config selects the network checks and their budgets.
type Config struct {
	MXCheck        bool
	MXTimeout      time.Duration
	MailboxProbe   bool
	MailboxTimeout time.Duration
	// Region is the phone region assumed for numbers without a country code.
	Region string
}

// Result holds the checks of one contact and their summary.
type Result struct {
	Checks          []intel.Check
	Status          intel.ValidationStatus
	NormalizedEmail string
	NormalizedPhone string
}

// Outcome returns the outcome of the named check, Unknown when absent.
func (r Result) Outcome(name string) intel.Outcome {
	for _, c := range r.Checks {
		if c.Name == name {
			return c.Outcome
		}
	}
	return intel.Unknown
}

// Validator checks contacts. It is safe for concurrent use.
type Validator struct {
	cfg    Config
	mx     *mxChecker
	prober MailboxProber
	logger *zap.Logger
}

// Option customises a Validator.
type Option func(*validatorOptions)

type validatorOptions struct {
	resolver Resolver
	prober   MailboxProber
}

// WithResolver overrides the DNS resolver used by the MX check.
func WithResolver(r Resolver) Option {
	return func(o *validatorOptions) { o.resolver = r }
}

// WithProber overrides the mailbox prober.
func WithProber(p MailboxProber) Option {
	return func(o *validatorOptions) { o.prober = p }
}

// New builds a Validator. Without options it resolves through the system
// resolver and probes mailboxes over SMTP when enabled.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Validator {
	if cfg.MXTimeout <= 0 {
		cfg.MXTimeout = 3 * time.Second
	}
	if cfg.MailboxTimeout <= 0 {
		cfg.MailboxTimeout = 10 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = intel.DefaultRegion
	}
	cfg.Region = strings.ToUpper(cfg.Region)
	if logger == nil {
		logger = zap.NewNop()
	}
	o := validatorOptions{
		resolver: net.DefaultResolver,
		prober:   SMTPProber{Timeout: cfg.MailboxTimeout},
	}
	for _, opt := range opts {
		opt(&o)
	}
	v := &Validator{cfg: cfg, prober: o.prober, logger: logger}
	if o.resolver != nil {
		v.mx = newMXChecker(o.resolver, cfg.MXTimeout)
	}
	return v
}

// Validate runs every check against c. Checks that cannot run report Unknown.
func (v *Validator) Validate(ctx context.Context, c intel.ContactCandidate) Result {
	var res Result
	add := func(name string, o intel.Outcome, detail string) {
		res.Checks = append(res.Checks, intel.Check{Name: name, Outcome: o, Detail: detail})
	}

	v.checkEmail(ctx, strings.TrimSpace(c.Email), &res, add)

	phone, po, pd := v.checkPhone(c.Phone)
	res.NormalizedPhone = phone
	add(CheckPhone, po, pd)

	no, nd := checkName(c.Name)
	add(CheckName, no, nd)

	if no == intel.Pass && res.NormalizedEmail != "" {
		o, d := checkNameEmail(c.Name, res.NormalizedEmail)
		add(CheckNameEmail, o, d)
	} else {
		add(CheckNameEmail, intel.Unknown, "needs a valid name and email")
	}

	res.Status = Status(res.Checks)
	v.logger.Debug("contact validated",
		zap.String("name", c.Name),
		zap.String("status", string(res.Status)),
	)
	return res
}

func (v *Validator) checkEmail(ctx context.Context, raw string, res *Result, add func(string, intel.Outcome, string)) {
	if raw == "" {
		add(CheckEmailSyntax, intel.Unknown, "no email")
		add(CheckEmailDomain, intel.Unknown, "no email")
		add(CheckEmailMX, intel.Unknown, "no email")
		add(CheckEmailMailbox, intel.Unknown, "no email")
		return
	}
	email := intel.NormalizeEmail(raw)
	if email == "" {
		add(CheckEmailSyntax, intel.Fail, "malformed address")
		add(CheckEmailDomain, intel.Unknown, "skipped")
		add(CheckEmailMX, intel.Unknown, "skipped")
		add(CheckEmailMailbox, intel.Unknown, "skipped")
		return
	}
	res.NormalizedEmail = email
	add(CheckEmailSyntax, intel.Pass, "")

	domain := intel.EmailDomain(email)
	switch {
	case IsDisposableDomain(domain):
		add(CheckEmailDomain, intel.Fail, "disposable domain")
	case IsPersonalDomain(domain):
		add(CheckEmailDomain, intel.Pass, "personal domain")
	default:
		add(CheckEmailDomain, intel.Pass, "")
	}

	if !v.cfg.MXCheck || v.mx == nil {
		add(CheckEmailMX, intel.Unknown, "disabled")
		add(CheckEmailMailbox, intel.Unknown, "disabled")
		return
	}
	mx := v.mx.check(ctx, domain)
	add(CheckEmailMX, mx.outcome, mx.detail)

	switch {
	case !v.cfg.MailboxProbe || v.prober == nil:
		add(CheckEmailMailbox, intel.Unknown, "disabled")
	case mx.outcome != intel.Pass:
		add(CheckEmailMailbox, intel.Unknown, "no mail exchanger")
	default:
		o, d := v.prober.Probe(ctx, mx.host, email)
		add(CheckEmailMailbox, o, d)
	}
}

func (v *Validator) checkPhone(raw string) (string, intel.Outcome, string) {
	if strings.TrimSpace(raw) == "" {
		return "", intel.Unknown, "no phone"
	}
	if e164, ok := NormalizePhone(raw, v.cfg.Region); ok {
		return e164, intel.Pass, ""
	}
	return "", intel.Fail, "not a valid number"
}

// NormalizePhone returns the E.164 form of phone when it is a valid number in
// region or carries its own country code.
func NormalizePhone(phone, region string) (string, bool) {
	num, err := phonenumbers.Parse(strings.TrimSpace(phone), region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

func checkName(raw string) (intel.Outcome, string) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return intel.Fail, "missing"
	}
	lower := strings.ToLower(name)
	if placeholderNames[lower] {
		return intel.Fail, "placeholder"
	}
	if len([]rune(name)) > maxNameLength {
		return intel.Fail, "too long"
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !strings.ContainsRune(" -'.,", r) {
			return intel.Fail, "unexpected characters"
		}
	}
	words := nameWords(lower)
	for _, w := range words {
		if nonPersonWords[w] {
			return intel.Fail, "department or business label"
		}
	}
	if len(words) < 2 {
		return intel.Unknown, "single name"
	}
	return intel.Pass, ""
}

// checkNameEmail reports whether the mailbox looks like it belongs to the
// named person: a name part, an initial-plus-surname form or a close spelling.
func checkNameEmail(name, email string) (intel.Outcome, string) {
	local := strings.ToLower(email[:strings.LastIndex(email, "@")])
	if roleLocalParts[local] {
		return intel.Fail, "role mailbox"
	}
	words := nameWords(strings.ToLower(name))
	if len(words) == 0 {
		return intel.Unknown, "no name parts"
	}
	compact := lettersOnly(local)
	for _, w := range words {
		if len(w) > 2 && strings.Contains(local, w) {
			return intel.Pass, ""
		}
	}
	first, last := words[0], words[len(words)-1]
	if len(words) > 1 && first != "" && last != "" {
		if strings.HasPrefix(compact, first[:1]+last) || compact == first+last[:1] || compact == first[:1]+last[:1] {
			return intel.Pass, ""
		}
	}
	if matchr.JaroWinkler(compact, first+last, false) >= nameEmailSimilarity {
		return intel.Pass, ""
	}
	return intel.Fail, "mailbox does not match name"
}

func nameWords(name string) []string {
	var out []string
	for _, f := range strings.Fields(name) {
		if w := lettersOnly(f); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func lettersOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return r
		}
		return -1
	}, s)
}

// Status summarises checks: valid when nothing failed and an email or phone
// passed; invalid when the email syntax or name failed, or when no contact
// method passed and one failed; unverified otherwise.
func Status(checks []intel.Check) intel.ValidationStatus {
	outcome := map[string]intel.Outcome{}
	anyFail := false
	for _, c := range checks {
		outcome[c.Name] = c.Outcome
		if c.Outcome == intel.Fail {
			anyFail = true
		}
	}
	if outcome[CheckEmailSyntax] == intel.Fail || outcome[CheckName] == intel.Fail {
		return intel.ValidationInvalid
	}
	emailFailed := outcome[CheckEmailDomain] == intel.Fail ||
		outcome[CheckEmailMX] == intel.Fail ||
		outcome[CheckEmailMailbox] == intel.Fail
	emailPassed := outcome[CheckEmailSyntax] == intel.Pass && !emailFailed
	phonePassed := outcome[CheckPhone] == intel.Pass

	if !anyFail && (emailPassed || phonePassed) {
		return intel.ValidationValid
	}
	if !emailPassed && !phonePassed && (emailFailed || outcome[CheckPhone] == intel.Fail) {
		return intel.ValidationInvalid
	}
	return intel.ValidationUnverified
}
