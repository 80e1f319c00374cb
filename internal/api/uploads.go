package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"parley/internal/storage"

	"github.com/h2non/filetype"
)

// maxUploadSize caps profile image uploads at 5 MiB.
const maxUploadSize = 5 << 20

// UploadImageHandler accepts a profile image, verifies it really is an
// image by content sniffing, and stores it content-addressed.
func (a *API) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Upload too large.", http.StatusRequestEntityTooLarge)
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "image file is required", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload.", http.StatusInternalServerError)
		return
	}

	if !filetype.IsImage(data) {
		http.Error(w, "Only image uploads are allowed.", http.StatusBadRequest)
		return
	}

	hash, err := a.files.Save(bytes.NewReader(data))
	if err != nil {
		http.Error(w, "Failed to store upload.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
	}{Success: true, URL: a.baseURL + "/api/images/" + hash}); err != nil {
		log.Printf("failed to encode upload response: %v", err)
	}
}

// GetImageHandler serves a stored image by its content hash.
func (a *API) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	f, err := a.files.Get(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 261)
	n, _ := io.ReadFull(f, head)
	head = head[:n]

	if kind, err := filetype.Image(head); err == nil {
		w.Header().Set("Content-Type", kind.MIME.Value)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")

	if _, err := w.Write(head); err != nil {
		return
	}
	_, _ = io.Copy(w, f)
}

// PushSubscribeHandler registers a web-push subscription for the
// caller, used to reach them when they have no live connection.
func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := a.currentUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256DH string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.Endpoint == "" || req.Keys.P256DH == "" || req.Keys.Auth == "" {
		http.Error(w, "Invalid subscription.", http.StatusBadRequest)
		return
	}

	// One subscription per endpoint; re-subscribing replaces it.
	sum := sha256.Sum256([]byte(req.Endpoint))
	sub := storage.DBPushSubscription{
		ID:       hex.EncodeToString(sum[:]),
		UserID:   caller.ID,
		Endpoint: req.Endpoint,
		P256DH:   req.Keys.P256DH,
		Auth:     req.Keys.Auth,
	}

	if err := a.store.UpsertPushSubscription(sub); err != nil {
		http.Error(w, "Failed to save subscription.", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// PushUnsubscribeHandler removes a previously registered subscription.
func (a *API) PushUnsubscribeHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := a.currentUser(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sum := sha256.Sum256([]byte(req.Endpoint))
	if err := a.store.DeletePushSubscription(hex.EncodeToString(sum[:])); err != nil {
		http.Error(w, "Failed to remove subscription.", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
