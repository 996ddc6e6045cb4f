package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/knjiznica/internal/imaging"
	"github.com/erazemk/knjiznica/internal/model"
	"github.com/erazemk/knjiznica/internal/store"
)

// BooksHandler handles catalog endpoints: books, covers and copies.
type BooksHandler struct {
	DB *sql.DB
}

type bookRequest struct {
	Title         string `json:"title" validate:"required,max=300"`
	Authors       string `json:"authors" validate:"required,max=300"`
	Publisher     string `json:"publisher" validate:"omitempty,max=200"`
	PublishedYear int    `json:"published_year" validate:"omitempty,gt=0,lte=9999"`
	Category      string `json:"category" validate:"omitempty,max=100"`
	ISBN13        string `json:"isbn13" validate:"omitempty,len=13,numeric"`
	Description   string `json:"description" validate:"omitempty,max=5000"`
}

func (req bookRequest) input() store.BookInput {
	return store.BookInput{
		Title:         req.Title,
		Authors:       req.Authors,
		Publisher:     req.Publisher,
		PublishedYear: req.PublishedYear,
		Category:      req.Category,
		ISBN13:        req.ISBN13,
		Description:   req.Description,
	}
}

type createCopyRequest struct {
	CopyCode  string              `json:"copy_code" validate:"required,max=50"`
	Condition model.CopyCondition `json:"condition" validate:"omitempty,oneof=new good fair poor damaged"`
	Location  string              `json:"location" validate:"omitempty,max=100"`
}

type updateCopyRequest struct {
	Condition model.CopyCondition `json:"condition" validate:"required,oneof=new good fair poor damaged lost"`
	Status    model.CopyStatus    `json:"status" validate:"required,oneof=available borrowed lost"`
	Location  string              `json:"location" validate:"omitempty,max=100"`
}

// List handles GET /api/books.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BookFilter{
		Search:        q.Get("search"),
		Category:      q.Get("category"),
		AvailableOnly: q.Get("available") == "true",
	}

	books, page, err := store.ListBooks(r.Context(), h.DB, filter, queryPage(r))
	if err != nil {
		slog.Error("failed to list books", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list books")
		return
	}
	if books == nil {
		books = []model.Book{}
	}
	jsonResponse(w, http.StatusOK, listResponse{Data: books, Pagination: page})
}

// Get handles GET /api/books/{id}.
func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book")
	if !ok {
		return
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get book")
		return
	}
	if book == nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}
	jsonResponse(w, http.StatusOK, book)
}

// Create handles POST /api/books.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	book, err := store.CreateBook(r.Context(), h.DB, req.input())
	if store.IsUniqueViolation(err) {
		jsonError(w, http.StatusConflict, "a book with this ISBN already exists")
		return
	}
	if err != nil {
		slog.Error("failed to create book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to create book")
		return
	}

	slog.Info("book created", "admin_id", GetClaims(r.Context()).UserID, "book_id", book.ID)
	jsonResponse(w, http.StatusCreated, book)
}

// Update handles PUT /api/books/{id}.
func (h *BooksHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book")
	if !ok {
		return
	}

	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	existing, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update book")
		return
	}
	if existing == nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}

	err = store.UpdateBook(r.Context(), h.DB, id, req.input())
	if store.IsUniqueViolation(err) {
		jsonError(w, http.StatusConflict, "a book with this ISBN already exists")
		return
	}
	if err != nil {
		slog.Error("failed to update book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update book")
		return
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get book")
		return
	}

	slog.Info("book updated", "admin_id", GetClaims(r.Context()).UserID, "book_id", id)
	jsonResponse(w, http.StatusOK, book)
}

// Delete handles DELETE /api/books/{id}.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book")
	if !ok {
		return
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}
	if book == nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}

	onLoan, err := store.BookHasUnresolvedLoans(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to check book loans", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}
	if onLoan {
		jsonError(w, http.StatusBadRequest, "cannot delete a book with copies on loan")
		return
	}

	if err := store.DeleteBook(r.Context(), h.DB, id); err != nil {
		if store.IsForeignKeyViolation(err) {
			jsonError(w, http.StatusBadRequest, "cannot delete a book with loan history")
			return
		}
		slog.Error("failed to delete book", "book_id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete book")
		return
	}

	slog.Info("book deleted", "admin_id", GetClaims(r.Context()).UserID, "book_id", id, "title", book.Title)
	jsonMessage(w, http.StatusOK, "book deleted")
}

// UploadCover handles PUT /api/books/{id}/cover.
func (h *BooksHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book")
	if !ok {
		return
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil || book == nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("cover")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "cover file required")
		return
	}
	defer file.Close()

	cover, err := imaging.ProcessCover(file)
	if errors.Is(err, imaging.ErrUnsupportedFormat) || errors.Is(err, imaging.ErrTooLarge) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, "could not read image")
		return
	}

	if err := store.SetBookCover(r.Context(), h.DB, id, cover.Data, cover.MIME); err != nil {
		slog.Error("failed to save cover", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to save cover")
		return
	}

	slog.Info("book cover uploaded", "admin_id", GetClaims(r.Context()).UserID, "book_id", id,
		"width", cover.Width, "height", cover.Height)
	jsonMessage(w, http.StatusOK, "cover uploaded")
}

// GetCover handles GET /api/books/{id}/cover.
func (h *BooksHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book")
	if !ok {
		return
	}

	data, mime, err := store.GetBookCover(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get cover", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get cover")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no cover")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// ListCopies handles GET /api/books/{id}/copies (admin, all statuses).
func (h *BooksHandler) ListCopies(w http.ResponseWriter, r *http.Request) {
	h.listCopies(w, r, "")
}

// ListAvailableCopies handles GET /api/books/{id}/copies/available.
func (h *BooksHandler) ListAvailableCopies(w http.ResponseWriter, r *http.Request) {
	h.listCopies(w, r, model.CopyAvailable)
}

func (h *BooksHandler) listCopies(w http.ResponseWriter, r *http.Request, status model.CopyStatus) {
	id, ok := pathID(w, r, "id", "book")
	if !ok {
		return
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list copies")
		return
	}
	if book == nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}

	copies, err := store.ListCopies(r.Context(), h.DB, id, status)
	if err != nil {
		slog.Error("failed to list copies", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list copies")
		return
	}
	if copies == nil {
		copies = []model.BookCopy{}
	}
	jsonResponse(w, http.StatusOK, copies)
}

// CreateCopy handles POST /api/books/{id}/copies.
func (h *BooksHandler) CreateCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "book")
	if !ok {
		return
	}

	var req createCopyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Condition == "" {
		req.Condition = model.ConditionGood
	}

	book, err := store.GetBook(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get book", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to add copy")
		return
	}
	if book == nil {
		jsonError(w, http.StatusNotFound, "book not found")
		return
	}

	c, err := store.CreateCopy(r.Context(), h.DB, id, req.CopyCode, req.Condition, req.Location)
	if store.IsUniqueViolation(err) {
		jsonError(w, http.StatusConflict, "copy code already in use")
		return
	}
	if err != nil {
		slog.Error("failed to create copy", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to add copy")
		return
	}

	slog.Info("copy added", "admin_id", GetClaims(r.Context()).UserID, "book_id", id, "copy_id", c.ID)
	jsonResponse(w, http.StatusCreated, c)
}

// UpdateCopy handles PUT /api/copies/{id}.
func (h *BooksHandler) UpdateCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "copy")
	if !ok {
		return
	}

	var req updateCopyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	c, err := store.GetCopy(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get copy", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update copy")
		return
	}
	if c == nil {
		jsonError(w, http.StatusNotFound, "copy not found")
		return
	}

	held, err := store.CopyHasUnresolvedLoan(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to check copy loans", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update copy")
		return
	}
	if held && req.Status != model.CopyBorrowed {
		jsonError(w, http.StatusBadRequest, "copy is on loan, return it first")
		return
	}
	if !held && req.Status == model.CopyBorrowed {
		jsonError(w, http.StatusBadRequest, "copies are marked borrowed only by a loan")
		return
	}

	if err := store.UpdateCopy(r.Context(), h.DB, id, req.Condition, req.Status, req.Location); err != nil {
		slog.Error("failed to update copy", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update copy")
		return
	}

	updated, err := store.GetCopy(r.Context(), h.DB, id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get copy")
		return
	}

	slog.Info("copy updated", "admin_id", GetClaims(r.Context()).UserID, "copy_id", id,
		"status", req.Status, "condition", req.Condition)
	jsonResponse(w, http.StatusOK, updated)
}

// DeleteCopy handles DELETE /api/copies/{id}.
func (h *BooksHandler) DeleteCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "copy")
	if !ok {
		return
	}

	c, err := store.GetCopy(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get copy", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete copy")
		return
	}
	if c == nil {
		jsonError(w, http.StatusNotFound, "copy not found")
		return
	}

	held, err := store.CopyHasUnresolvedLoan(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to check copy loans", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete copy")
		return
	}
	if held {
		jsonError(w, http.StatusBadRequest, "copy is on loan, return it first")
		return
	}

	if err := store.DeleteCopy(r.Context(), h.DB, id); err != nil {
		if store.IsForeignKeyViolation(err) {
			jsonError(w, http.StatusBadRequest, "cannot delete a copy with loan history")
			return
		}
		slog.Error("failed to delete copy", "copy_id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to delete copy")
		return
	}

	slog.Info("copy deleted", "admin_id", GetClaims(r.Context()).UserID, "copy_id", id, "copy_code", c.CopyCode)
	jsonMessage(w, http.StatusOK, "copy deleted")
}
