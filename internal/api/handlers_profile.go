package api

import (
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/onegen/bank-api/internal/app"
	"github.com/onegen/bank-api/internal/domain"
)

const (
	maxMultipartMemory  = 32 << 20
	maxProfileJSONBytes = 32 << 20
)

// profileUpdateRequest is the JSON form of a profile update. Photos are sent as
// base64 strings.
type profileUpdateRequest struct {
	domain.ProfileUpdate
	Photo          *string `json:"photo"`
	IDPhoto        *string `json:"id_photo"`
	SignaturePhoto *string `json:"signature_photo"`
}

type provisioningResponse struct {
	Outcome       app.ProvisionOutcome `json:"outcome"`
	AccountNumber string               `json:"account_number,omitempty"`
	MissingFields []string             `json:"missing_fields,omitempty"`
}

type profileUpdateResponse struct {
	*domain.Profile
	AccountProvisioning provisioningResponse `json:"account_provisioning"`
}

// GetProfileHandler returns the caller's profile.
func (h *Handlers) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	profile, err := h.profiles.GetProfile(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.profiles.RecordProfileView(r.Context(), profile.ID, user.ID, clientIP(r))
	writeJSON(w, http.StatusOK, profile)
}

// ListProfilesHandler lists customer profiles for branch managers.
func (h *Handlers) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	profiles, err := h.profiles.ListCustomerProfiles(r.Context(), user.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if profiles == nil {
		profiles = []domain.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// UpdateProfileHandler applies a partial profile update. It accepts JSON with
// base64 photos or multipart form data with photo files.
func (h *Handlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var (
		update domain.ProfileUpdate
		err    error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		update, err = h.parseMultipartProfileUpdate(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		var ok bool
		if update, ok = decodeProfileUpdateJSON(w, r); !ok {
			return
		}
	}

	result, err := h.profiles.UpdateProfile(r.Context(), user.ID, update)
	if err != nil {
		removeSpooledPhotos(update.Photos)
		writeServiceError(w, r, err)
		return
	}

	h.profiles.RecordProfileView(r.Context(), result.Profile.ID, user.ID, clientIP(r))

	resp := profileUpdateResponse{
		Profile: result.Profile,
		AccountProvisioning: provisioningResponse{
			Outcome:       result.Provision.Outcome,
			MissingFields: result.Provision.MissingFields,
		},
	}
	if result.Provision.Account != nil {
		resp.AccountProvisioning.AccountNumber = result.Provision.Account.AccountNumber
	}
	writeJSON(w, http.StatusOK, resp)
}

// clientIP is the first X-Forwarded-For hop, or the peer address without its port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeProfileUpdateJSON(w http.ResponseWriter, r *http.Request) (domain.ProfileUpdate, bool) {
	var req profileUpdateRequest
	if !decodeJSONLimit(w, r, &req, maxProfileJSONBytes) {
		return domain.ProfileUpdate{}, false
	}
	return req.toUpdate(), true
}

func (req profileUpdateRequest) toUpdate() domain.ProfileUpdate {
	update := req.ProfileUpdate
	photos := map[domain.PhotoField]*string{
		domain.PhotoFieldPhoto:          req.Photo,
		domain.PhotoFieldIDPhoto:        req.IDPhoto,
		domain.PhotoFieldSignaturePhoto: req.SignaturePhoto,
	}
	for field, data := range photos {
		if data == nil {
			continue
		}
		if update.Photos == nil {
			update.Photos = map[domain.PhotoField]domain.PhotoSource{}
		}
		update.Photos[field] = domain.PhotoSource{Type: domain.PhotoSourceBase64, Data: stripDataURL(*data)}
	}
	return update
}

// stripDataURL drops a "data:image/png;base64," prefix if present.
func stripDataURL(data string) string {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i >= 0 {
			return data[i+1:]
		}
	}
	return data
}

// parseMultipartProfileUpdate reads text fields as a JSON object so they go
// through the same decoding as a JSON body, and spools photo files to disk.
func (h *Handlers) parseMultipartProfileUpdate(r *http.Request) (domain.ProfileUpdate, error) {
	var update domain.ProfileUpdate
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return update, fmt.Errorf("invalid multipart form: %w", err)
	}

	values := make(map[string]string, len(r.MultipartForm.Value))
	for key, vals := range r.MultipartForm.Value {
		if len(vals) > 0 && !domain.PhotoField(key).Valid() {
			values[key] = vals[0]
		}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return update, err
	}
	if err := json.Unmarshal(raw, &update); err != nil {
		return update, fmt.Errorf("invalid form field: %w", err)
	}

	for _, field := range domain.PhotoFields {
		file, _, err := r.FormFile(string(field))
		if err == http.ErrMissingFile {
			continue
		}
		if err != nil {
			removeSpooledPhotos(update.Photos)
			return update, fmt.Errorf("invalid %s upload: %w", field, err)
		}
		src, err := app.SpoolUpload(h.uploadDir, field, file)
		file.Close()
		if err != nil {
			removeSpooledPhotos(update.Photos)
			return update, err
		}
		if update.Photos == nil {
			update.Photos = map[domain.PhotoField]domain.PhotoSource{}
		}
		update.Photos[field] = src
	}
	return update, nil
}

func removeSpooledPhotos(photos map[domain.PhotoField]domain.PhotoSource) {
	for _, src := range photos {
		if src.Type != domain.PhotoSourceFile {
			continue
		}
		if err := os.Remove(src.Data); err != nil && !os.IsNotExist(err) {
			log.Printf("level=warn component=api msg=\"spooled upload cleanup failed\" path=%s err=%v", src.Data, err)
		}
	}
}

// ListNextOfKinHandler lists the caller's next of kin.
func (h *Handlers) ListNextOfKinHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	kins, err := h.profiles.ListNextOfKin(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if kins == nil {
		kins = []domain.NextOfKin{}
	}
	writeJSON(w, http.StatusOK, kins)
}

// GetNextOfKinHandler returns one next of kin.
func (h *Handlers) GetNextOfKinHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	kinID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	kin, err := h.profiles.GetNextOfKin(r.Context(), user.ID, kinID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kin)
}

// AddNextOfKinHandler adds a next of kin to the caller's profile.
func (h *Handlers) AddNextOfKinHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var input domain.NextOfKinInput
	if !decodeJSON(w, r, &input) {
		return
	}
	kin, err := h.profiles.AddNextOfKin(r.Context(), user.ID, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, kin)
}

// UpdateNextOfKinHandler partially updates a next of kin.
func (h *Handlers) UpdateNextOfKinHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	kinID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var input domain.NextOfKinInput
	if !decodeJSON(w, r, &input) {
		return
	}
	kin, err := h.profiles.UpdateNextOfKin(r.Context(), user.ID, kinID, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, kin)
}

// DeleteNextOfKinHandler removes a next of kin.
func (h *Handlers) DeleteNextOfKinHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	kinID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.profiles.DeleteNextOfKin(r.Context(), user.ID, kinID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
