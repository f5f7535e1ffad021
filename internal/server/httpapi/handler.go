package httpapi

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/models"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	password := r.URL.Query().Get("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	accountID, err := s.accounts.Register(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, common.ErrorAccountExists) {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"account_id": accountID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceID := q.Get("device_id")
	username := q.Get("username")
	password := q.Get("password")
	if deviceID == "" || username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "device_id, username and password are required")
		return
	}

	result, err := s.accounts.Login(r.Context(), deviceID, username, password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			writeError(w, http.StatusUnauthorized, "account not found")
			return
		}
		s.serverError(w, r, err)
		return
	}

	// A renewed session answers 200, a brand new one 201.
	status := http.StatusCreated
	if result.Renewed {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{"session_id": result.Token})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, identity *models.DeviceIdentity) {
	// A device may list another device of the same account.
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		deviceID = identity.DeviceID
	}

	found, err := s.backup.ListFiles(r.Context(), identity.AccountID, deviceID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request, identity *models.DeviceIdentity) {
	devices, err := s.backup.ListDevices(r.Context(), identity.AccountID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, identity *models.DeviceIdentity) {
	filePath := r.URL.Query().Get("file_path")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		writeError(w, http.StatusBadRequest, "Content-Type must be multipart/form-data")
		return
	}

	mr := multipart.NewReader(r.Body, params["boundary"])

	file, err := s.backup.Upload(r.Context(), identity, filePath, mr)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorBadMultipart):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, common.ErrorDigestMismatch):
			// Business outcome, not a transport failure: the declared digest
			// did not match what was actually received.
			writeError(w, http.StatusPreconditionFailed, "declared and computed digests do not match")
		default:
			s.serverError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, file)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, identity *models.DeviceIdentity) {
	versionID, ok := parseID(w, r, "file_version_id")
	if !ok {
		return
	}

	meta, stream, err := s.backup.Load(r.Context(), identity, versionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "file version not found")
			return
		}
		s.serverError(w, r, err)
		return
	}
	defer stream.Close()

	w.Header().Set(FileHashHeader, meta.Hash)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	// The response is already streaming; a blob read error from here on can
	// only truncate the body.
	if _, err := io.Copy(w, stream); err != nil {
		s.logger.Warn(r.Context(), "download stream interrupted", "error", err.Error())
	}
}

func (s *Server) handleRemoveFileVersion(w http.ResponseWriter, r *http.Request, identity *models.DeviceIdentity) {
	versionID, ok := parseID(w, r, "file_version_id")
	if !ok {
		return
	}

	err := s.backup.RemoveFileVersion(r.Context(), versionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "file version not found")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request, identity *models.DeviceIdentity) {
	fileID, ok := parseID(w, r, "file_id")
	if !ok {
		return
	}

	failures, err := s.backup.RemoveFile(r.Context(), identity, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.serverError(w, r, err)
		return
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"failures": failures})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{})
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, param+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal error")
}
