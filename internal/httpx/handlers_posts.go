package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"local.dev/nexboard-backend/internal/board"
)

// GET /posts; POST /posts
func HandlePosts(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, app.Feed.Feed())

		case http.MethodPost:
			WithAuth(app, handleSubmit(app))(w, r)

		default:
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		}
	}
}

func handleSubmit(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := readSubmit(w, r)
		if err != nil {
			writeErr(w, err)
			return
		}
		post, err := app.Composer.Submit(r.Context(), currentSession(r), in)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, post)
	}
}

// readSubmit accepts either a JSON body (no image) or a multipart form with
// fields title, content and an optional file field image.
func readSubmit(w http.ResponseWriter, r *http.Request) (board.SubmitInput, error) {
	// Cap well above the image guard so an oversized file reaches the
	// composer's own rejection instead of a blunt 413. The cap covers
	// JSON bodies too.
	r.Body = http.MaxBytesReader(w, r.Body, 16<<20)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var in struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return board.SubmitInput{}, &board.ValidationError{Message: "invalid json"}
		}
		return board.SubmitInput{Title: in.Title, Content: in.Content}, nil
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return board.SubmitInput{}, &board.ValidationError{Message: "parse form: " + err.Error()}
	}
	in := board.SubmitInput{
		Title:   r.FormValue("title"),
		Content: r.FormValue("content"),
	}

	file, hdr, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return in, nil
	}
	if err != nil {
		return board.SubmitInput{}, &board.ValidationError{Message: "form file: " + err.Error()}
	}
	// The file handle lives until the request ends; ParseMultipartForm's
	// cleanup closes it.

	head := make([]byte, 512)
	n, _ := io.ReadFull(file, head)
	head = head[:n]
	mtype := http.DetectContentType(head)
	if !strings.HasPrefix(mtype, "image/") {
		return board.SubmitInput{}, &board.ValidationError{Message: "unsupported image type: " + mtype}
	}

	in.Image = &board.Image{
		Name:        hdr.Filename,
		Size:        hdr.Size,
		ContentType: mtype,
		Data:        io.MultiReader(bytes.NewReader(head), file),
	}
	return in, nil
}

// DELETE /posts/{id}?confirm=true
func HandlePostDetail(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/posts/")
		if id == "" || strings.Contains(id, "/") {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodDelete {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		WithAuth(app, func(w http.ResponseWriter, r *http.Request) {
			confirmed := r.URL.Query().Get("confirm") == "true"
			if err := app.Composer.Delete(r.Context(), currentSession(r), id, confirmed); err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		})(w, r)
	}
}
