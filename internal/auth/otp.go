package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const otpSecretBytes = 20

// otpSkewSteps is the accepted clock drift on validation, in time steps
// either side of now.
const otpSkewSteps = 1

// CharsetNumeric is the digit charset used by every email/SMS style code
// and by authenticator apps.
const CharsetNumeric = "0123456789"

// OTPConfig holds the code-derivation parameters stored alongside each
// verification record.
type OTPConfig struct {
	Algorithm string
	Digits    int
	Period    int
	Charset   string
}

// DefaultOTPConfig is used for one-time email codes: SHA-256, six numeric
// digits, valid for ten minutes.
func DefaultOTPConfig() OTPConfig {
	return OTPConfig{Algorithm: "SHA-256", Digits: 6, Period: 600, Charset: CharsetNumeric}
}

// TwoFactorOTPConfig is used for authenticator-app enrollment. SHA-1 and a
// 30 second period are what the app ecosystem expects.
func TwoFactorOTPConfig() OTPConfig {
	return OTPConfig{Algorithm: "SHA-1", Digits: 6, Period: 30, Charset: CharsetNumeric}
}

// OTPKey is a freshly generated secret plus the one code currently valid
// for it. The secret is persisted server-side; the code never is.
type OTPKey struct {
	OTP       string
	Secret    string
	Algorithm string
	Digits    int
	Period    int
	Charset   string
}

// GenerateOTP creates a new random secret and derives the code for the
// current time step.
func GenerateOTP(cfg OTPConfig, now time.Time) (*OTPKey, error) {
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA-1"
	}
	if cfg.Charset == "" {
		cfg.Charset = CharsetNumeric
	}

	raw := make([]byte, otpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)

	counter := now.Unix() / int64(cfg.Period)
	otp, err := hotpCode(raw, counter, cfg.Digits, cfg.Algorithm, cfg.Charset)
	if err != nil {
		return nil, err
	}

	return &OTPKey{
		OTP:       otp,
		Secret:    secret,
		Algorithm: cfg.Algorithm,
		Digits:    cfg.Digits,
		Period:    cfg.Period,
		Charset:   cfg.Charset,
	}, nil
}

// VerifyOTP recomputes the code from the stored record and accepts it
// within otpSkewSteps time steps of drift. Wrong codes return false, never
// an error.
func VerifyOTP(code string, v *Verification, now time.Time) (bool, error) {
	if v == nil {
		return false, errors.New("nil verification")
	}
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != v.Digits {
		return false, nil
	}

	secret, err := decodeSecret(v.Secret)
	if err != nil {
		return false, err
	}

	base := now.Unix() / int64(v.Period)
	for step := int64(-otpSkewSteps); step <= otpSkewSteps; step++ {
		counter := base + step
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, v.Digits, v.Algorithm, v.Charset)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// ProvisionURI renders the otpauth:// URI that enrollment QR codes encode.
func ProvisionURI(v *Verification, account, issuer string) string {
	label := url.PathEscape(issuer + ":" + account)

	q := url.Values{}
	q.Set("secret", v.Secret)
	q.Set("issuer", issuer)
	q.Set("period", strconv.Itoa(v.Period))
	q.Set("digits", strconv.Itoa(v.Digits))
	q.Set("algorithm", normalizeAlgorithm(v.Algorithm))

	return "otpauth://totp/" + label + "?" + q.Encode()
}

// hotpCode implements RFC 4226 dynamic truncation, generalized so the
// truncated value is rendered in an arbitrary charset. For the numeric
// charset the output is bit-for-bit the RFC code.
func hotpCode(secret []byte, counter int64, digits int, algorithm, charset string) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty otp secret")
	}
	if charset == "" {
		charset = CharsetNumeric
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := uint64(sum[offset]&0x7f)<<24 |
		uint64(sum[offset+1])<<16 |
		uint64(sum[offset+2])<<8 |
		uint64(sum[offset+3])

	base := uint64(len(charset))
	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= base
	}
	v := bin % mod

	out := make([]byte, digits)
	for i := digits - 1; i >= 0; i-- {
		out[i] = charset[v%base]
		v /= base
	}
	return string(out), nil
}

func decodeSecret(secret string) ([]byte, error) {
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch normalizeAlgorithm(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported otp algorithm")
	}
}

func normalizeAlgorithm(algorithm string) string {
	return strings.ReplaceAll(strings.ToUpper(algorithm), "-", "")
}
