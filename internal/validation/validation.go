// Package validation holds the stateless field validators used by the
// application forms. Validators report {isValid, errorMessage} and never
// change stored data.
package validation

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"welfareflow/internal/domain"
	"welfareflow/internal/repo"
)

const (
	KindIFSC          = "ifsc"
	KindAccountNumber = "account-number"
	KindMobileNumber  = "mobile-number"
	KindEmail         = "email"
	KindAadhaar       = "aadhaar"
	KindFileSignature = "file-signature"
)

// Kinds lists every validator reachable through Validate.
var Kinds = []string{KindIFSC, KindAccountNumber, KindMobileNumber, KindEmail, KindAadhaar, KindFileSignature}

var ErrUnknownKind = errors.New("unknown validator")

var (
	ifscPattern    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	accountPattern = regexp.MustCompile(`^\d{9,18}$`)
	mobilePattern  = regexp.MustCompile(`^[6-9]\d{9}$`)
	aadhaarPattern = regexp.MustCompile(`^[2-9]\d{11}$`)
)

type Result struct {
	IsValid      bool              `json:"isValid"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

func ok() Result { return Result{IsValid: true} }

func fail(format string, args ...any) Result {
	return Result{ErrorMessage: fmt.Sprintf(format, args...)}
}

// Store is the lookup surface the validators need.
type Store interface {
	GetBankBranch(ctx context.Context, ifsc string) (domain.BankBranch, error)
	CountAccountNumber(ctx context.Context, account, excludeRef string) (int, error)
}

type Service struct {
	Store        Store
	MaxBytes     int64
	AllowedTypes []string
}

// Input carries the value under test. ReferenceNumber excludes the
// application itself from duplicate checks; Content is used for files.
type Input struct {
	Value           string `json:"value,omitempty"`
	ReferenceNumber string `json:"referenceNumber,omitempty"`
	Content         []byte `json:"content,omitempty"`
}

// Validate dispatches to the validator named by kind.
func (s Service) Validate(ctx context.Context, kind string, in Input) (Result, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindIFSC:
		return s.IFSC(ctx, in.Value)
	case KindAccountNumber:
		return s.AccountNumber(ctx, in.Value, in.ReferenceNumber)
	case KindMobileNumber:
		return MobileNumber(in.Value), nil
	case KindEmail:
		return Email(in.Value), nil
	case KindAadhaar:
		return Aadhaar(in.Value), nil
	case KindFileSignature:
		return s.FileSignature(in.Content), nil
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// IFSC checks the code format and that the branch is known.
func (s Service) IFSC(ctx context.Context, code string) (Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ifscPattern.MatchString(code) {
		return fail("IFSC code must be 4 letters, a zero and 6 letters or digits"), nil
	}
	b, err := s.Store.GetBankBranch(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return fail("IFSC code %s is not registered", code), nil
	}
	if err != nil {
		return Result{}, err
	}
	res := ok()
	res.Details = map[string]string{"bank": b.Bank, "branch": b.Branch}
	return res, nil
}

// AccountNumber checks the format and that no other live application uses it.
func (s Service) AccountNumber(ctx context.Context, account, excludeRef string) (Result, error) {
	account = strings.TrimSpace(account)
	if !accountPattern.MatchString(account) {
		return fail("account number must be 9 to 18 digits"), nil
	}
	n, err := s.Store.CountAccountNumber(ctx, account, excludeRef)
	if err != nil {
		return Result{}, err
	}
	if n > 0 {
		return fail("account number is already used by another application"), nil
	}
	return ok(), nil
}

func MobileNumber(v string) Result {
	if !mobilePattern.MatchString(strings.TrimSpace(v)) {
		return fail("mobile number must be 10 digits starting with 6, 7, 8 or 9")
	}
	return ok()
}

func Email(v string) Result {
	v = strings.TrimSpace(v)
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return fail("invalid email address")
	}
	return ok()
}

// Aadhaar checks the 12 digit format and the Verhoeff check digit.
func Aadhaar(v string) Result {
	v = strings.ReplaceAll(strings.TrimSpace(v), " ", "")
	if !aadhaarPattern.MatchString(v) {
		return fail("Aadhaar number must be 12 digits and cannot start with 0 or 1")
	}
	if !verhoeff(v) {
		return fail("Aadhaar number checksum does not match")
	}
	return ok()
}

// FileSignature detects the type from the content, not the file name.
func (s Service) FileSignature(content []byte) Result {
	if len(content) == 0 {
		return fail("file is empty")
	}
	if s.MaxBytes > 0 && int64(len(content)) > s.MaxBytes {
		return fail("file exceeds %d bytes", s.MaxBytes)
	}
	mt := mimetype.Detect(content)
	if len(s.AllowedTypes) > 0 && !mimetype.EqualsAny(mt.String(), s.AllowedTypes...) {
		return Result{
			ErrorMessage: fmt.Sprintf("file type %s is not allowed", mt.String()),
			Details:      map[string]string{"mime": mt.String()},
		}
	}
	return Result{IsValid: true, Details: map[string]string{"mime": mt.String(), "extension": mt.Extension()}}
}

var (
	verhoeffD = [10][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 2, 3, 4, 0, 6, 7, 8, 9, 5},
		{2, 3, 4, 0, 1, 7, 8, 9, 5, 6},
		{3, 4, 0, 1, 2, 8, 9, 5, 6, 7},
		{4, 0, 1, 2, 3, 9, 5, 6, 7, 8},
		{5, 9, 8, 7, 6, 0, 4, 3, 2, 1},
		{6, 5, 9, 8, 7, 1, 0, 4, 3, 2},
		{7, 6, 5, 9, 8, 2, 1, 0, 4, 3},
		{8, 7, 6, 5, 9, 3, 2, 1, 0, 4},
		{9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
	}
	verhoeffP = [8][10]int{
		{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		{1, 5, 7, 6, 2, 8, 3, 0, 9, 4},
		{5, 8, 0, 3, 7, 9, 6, 1, 4, 2},
		{8, 9, 1, 6, 0, 4, 3, 5, 2, 7},
		{9, 4, 5, 3, 1, 2, 7, 8, 6, 0},
		{4, 2, 8, 6, 5, 7, 3, 9, 0, 1},
		{2, 7, 9, 3, 8, 0, 6, 4, 1, 5},
		{7, 0, 4, 6, 9, 1, 3, 2, 5, 8},
	}
)

func verhoeff(digits string) bool {
	c := 0
	for i := 0; i < len(digits); i++ {
		n := int(digits[len(digits)-1-i] - '0')
		c = verhoeffD[c][verhoeffP[i%8][n]]
	}
	return c == 0
}
