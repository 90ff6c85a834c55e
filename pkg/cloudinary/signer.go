// Package cloudinary signs direct browser uploads so the API secret never
// leaves the server.
package cloudinary

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2/api"

	"github.com/oneman/oneman-backend/pkg/config"
)

var (
	// ErrNotConfigured is returned when cloud name, key or secret is missing.
	ErrNotConfigured = errors.New("cloudinary credentials are not configured")
	// ErrInvalidPublicID is returned for empty or malformed public ids.
	ErrInvalidPublicID = errors.New("invalid public id")

	publicIDRe = regexp.MustCompile(`^[A-Za-z0-9_\-./]+$`)
)

// UploadSignature is everything a client needs to post a file to the CDN.
type UploadSignature struct {
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	CloudName string `json:"cloudName"`
	APIKey    string `json:"apiKey"`
	Folder    string `json:"folder,omitempty"`
	PublicID  string `json:"publicId"`
	UploadURL string `json:"uploadUrl"`
}

// Signer produces upload signatures.
type Signer struct {
	cfg config.CloudinaryConfig
	now func() time.Time
}

// NewSigner builds a signer. It does not fail on missing credentials so the
// API can boot; Sign reports ErrNotConfigured instead.
func NewSigner(cfg config.CloudinaryConfig) *Signer {
	return &Signer{cfg: cfg, now: time.Now}
}

// Sign returns the parameters for a signed upload of publicID. An empty folder
// falls back to the configured default.
func (s *Signer) Sign(publicID, folder string) (*UploadSignature, error) {
	if s == nil || !s.cfg.Configured() {
		return nil, ErrNotConfigured
	}
	publicID = strings.TrimSpace(publicID)
	if publicID == "" || !publicIDRe.MatchString(publicID) || strings.Contains(publicID, "..") {
		return nil, ErrInvalidPublicID
	}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		folder = strings.Trim(s.cfg.DefaultFolder, "/")
	}
	if folder != "" && (!publicIDRe.MatchString(folder) || strings.Contains(folder, "..")) {
		return nil, ErrInvalidPublicID
	}

	ts := s.now().Unix()
	params := url.Values{}
	params.Set("public_id", publicID)
	params.Set("timestamp", strconv.FormatInt(ts, 10))
	if folder != "" {
		params.Set("folder", folder)
	}

	signature, err := api.SignParameters(params, s.cfg.APISecret)
	if err != nil {
		return nil, err
	}

	return &UploadSignature{
		Timestamp: ts,
		Signature: signature,
		CloudName: s.cfg.CloudName,
		APIKey:    s.cfg.APIKey,
		Folder:    folder,
		PublicID:  publicID,
		UploadURL: "https://api.cloudinary.com/v1_1/" + s.cfg.CloudName + "/image/upload",
	}, nil
}
