package validation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"welfareflow/internal/testutil"
	"welfareflow/internal/validation"
)

func newService(t *testing.T) (testutil.Env, validation.Service) {
	t.Helper()
	env := testutil.NewEnv(t)
	return env, validation.Service{
		Store:        env.Engine.Repo,
		MaxBytes:     env.Config.Uploads.MaxBytes,
		AllowedTypes: env.Config.Uploads.AllowedTypes,
	}
}

func TestIFSC(t *testing.T) {
	env, svc := newService(t)
	res, err := svc.IFSC(env.Ctx, "jaka0bishna")
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.NotEmpty(t, res.Details["bank"])

	res, err = svc.IFSC(env.Ctx, "JAKA0NOWHERE")
	require.NoError(t, err)
	assert.False(t, res.IsValid)

	res, err = svc.IFSC(env.Ctx, "HDFC0ABCDEF")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.ErrorMessage, "not registered")
}

func TestAccountNumberDuplicates(t *testing.T) {
	env, svc := newService(t)
	env.Submit(t, "REF-1", "Asha Devi")

	res, err := svc.AccountNumber(env.Ctx, "123456789012", "")
	require.NoError(t, err)
	assert.False(t, res.IsValid)

	res, err = svc.AccountNumber(env.Ctx, "123456789012", "REF-1")
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	res, err = svc.AccountNumber(env.Ctx, "12ab", "")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
}

func TestFieldFormats(t *testing.T) {
	cases := []struct {
		name string
		got  validation.Result
		want bool
	}{
		{"mobile ok", validation.MobileNumber("9876543210"), true},
		{"mobile leading 5", validation.MobileNumber("5876543210"), false},
		{"mobile short", validation.MobileNumber("98765"), false},
		{"email ok", validation.Email("citizen@example.gov.in"), true},
		{"email display name", validation.Email("Citizen <citizen@example.in>"), false},
		{"email no domain dot", validation.Email("citizen@localhost"), false},
		{"aadhaar ok", validation.Aadhaar("2341 2341 2346"), true},
		{"aadhaar checksum", validation.Aadhaar("234123412345"), false},
		{"aadhaar leading 1", validation.Aadhaar("134123412346"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.got.IsValid, tc.name)
		if !tc.want {
			assert.NotEmpty(t, tc.got.ErrorMessage, tc.name)
		}
	}
}

func TestFileSignature(t *testing.T) {
	svc := validation.Service{MaxBytes: 64, AllowedTypes: []string{"application/pdf", "image/png"}}

	res := svc.FileSignature([]byte("%PDF-1.4\n%âãÏÓ\n"))
	assert.True(t, res.IsValid)
	assert.Equal(t, "application/pdf", res.Details["mime"])

	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	assert.True(t, svc.FileSignature(png).IsValid)

	res = svc.FileSignature([]byte("MZ this is an executable pretending to be a pdf"))
	assert.False(t, res.IsValid)

	assert.False(t, svc.FileSignature(nil).IsValid)
	big := append([]byte("%PDF-1.4\n"), make([]byte, 100)...)
	assert.Contains(t, svc.FileSignature(big).ErrorMessage, "exceeds")
}

func TestValidateDispatch(t *testing.T) {
	svc := validation.Service{}
	res, err := svc.Validate(context.Background(), "Mobile-Number", validation.Input{Value: "9876543210"})
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	_, err = svc.Validate(context.Background(), "pan", validation.Input{Value: "X"})
	assert.True(t, errors.Is(err, validation.ErrUnknownKind))
}
