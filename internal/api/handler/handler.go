package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/apperr"
	"github.com/RoyceAzure/lab/storefront/internal/util"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.InvalidArgumentCode, "Request body is required")
		}
		return apperr.Wrap(apperr.InvalidArgumentCode, "Invalid request body", err)
	}
	return nil
}

// queryInt 沒帶參數回傳 0, 交給 service 套預設值
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.Newf(apperr.InvalidArgumentCode, "%s must be a positive integer", name)
	}
	return v, nil
}

func caller(r *http.Request) (model.Identity, error) {
	identity, ok := util.GetIdentityFromContext(r.Context())
	if !ok {
		return model.Identity{}, apperr.New(apperr.UnauthenticatedCode, "Authentication required")
	}
	return identity, nil
}
