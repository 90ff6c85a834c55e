package controllers

import (
	"errors"
	"net/http"

	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/api/validators"
	"github.com/oneman/oneman-backend/pkg/cloudinary"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
)

type uploadSigner interface {
	Sign(publicID, folder string) (*cloudinary.UploadSignature, error)
}

type uploadSignRequest struct {
	PublicID string `json:"publicId" validate:"required,max=255"`
	Folder   string `json:"folder,omitempty" validate:"omitempty,max=255"`
}

// UploadSign hands the client the parameters for a direct signed upload.
func UploadSign(signer uploadSigner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body uploadSignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if signer == nil {
			responses.WriteError(r.Context(), logg, w, uploadError(cloudinary.ErrNotConfigured))
			return
		}
		sig, err := signer.Sign(body.PublicID, body.Folder)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, uploadError(err))
			return
		}
		responses.WriteSuccess(w, sig)
	}
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, cloudinary.ErrInvalidPublicID):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid public id")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload signing failed").WithReason("UploadFailed")
	}
}
