package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

// driveStub records Drive API calls and serves canned folder metadata.
type driveStub struct {
	folders map[string]folderMeta

	gets    []string
	renames []string
	creates []createdFile
}

type folderMeta struct {
	Name    string
	Trashed bool
}

type createdFile struct {
	Name    string
	Parents []string
	Media   string
}

func (s *driveStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/files/")
		meta, ok := s.folders[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error": {"code": 404, "message": "File not found: %s"}}`, id)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.gets = append(s.gets, id)
			json.NewEncoder(w).Encode(map[string]any{"id": id, "name": meta.Name, "trashed": meta.Trashed})
		case http.MethodPatch:
			var body struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			meta.Name = body.Name
			s.folders[id] = meta
			s.renames = append(s.renames, id+":"+body.Name)
			json.NewEncoder(w).Encode(map[string]any{"id": id})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		var file createdFile
		if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.creates = append(s.creates, file)
		json.NewEncoder(w).Encode(map[string]any{"id": fmt.Sprintf("created-%d", len(s.creates))})
	})
	mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Multipart upload: the first part carries the JSON metadata, the
		// second the media bytes. Parsing the envelope precisely is not the
		// point here, so keep the raw body for substring assertions.
		s.creates = append(s.creates, createdFile{Media: string(body)})
		json.NewEncoder(w).Encode(map[string]any{"id": fmt.Sprintf("created-%d", len(s.creates))})
	})
	return mux
}

func newTestClient(t *testing.T, stub *driveStub) *Client {
	t.Helper()
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(),
		WithClientOptions(option.WithEndpoint(server.URL), option.WithoutAuthentication()),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestEnsureFolderReusesLiveFolder(t *testing.T) {
	stub := &driveStub{folders: map[string]folderMeta{"folder-1": {Name: "ИД-42 ПГ Сургут, Ленина, 10"}}}
	client := newTestClient(t, stub)

	id, err := client.EnsureFolder(context.Background(), "folder-1", "ИД-42 ПГ Сургут, Ленина, 10", "parent")
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	if id != "folder-1" {
		t.Errorf("Expected the existing folder id back, got %q", id)
	}
	if len(stub.creates) != 0 {
		t.Errorf("Expected no folder creation, got %d", len(stub.creates))
	}
	if len(stub.renames) != 0 {
		t.Errorf("Expected no rename for an unchanged name, got %v", stub.renames)
	}
}

func TestEnsureFolderRenamesOnNameChange(t *testing.T) {
	stub := &driveStub{folders: map[string]folderMeta{"folder-1": {Name: "ИД-42 ПГ Сургут, Старая, 1"}}}
	client := newTestClient(t, stub)

	id, err := client.EnsureFolder(context.Background(), "folder-1", "ИД-42 ПГ Сургут, Ленина, 10", "parent")
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	if id != "folder-1" {
		t.Errorf("Expected the existing folder id back, got %q", id)
	}
	if len(stub.renames) != 1 || stub.renames[0] != "folder-1:ИД-42 ПГ Сургут, Ленина, 10" {
		t.Errorf("Expected one rename to the new name, got %v", stub.renames)
	}
}

func TestEnsureFolderRecreatesWhenMissing(t *testing.T) {
	stub := &driveStub{folders: map[string]folderMeta{}}
	client := newTestClient(t, stub)

	id, err := client.EnsureFolder(context.Background(), "gone", "ИД-42 ПГ Сургут, Ленина, 10", "parent")
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	if id != "created-1" {
		t.Errorf("Expected the new folder id, got %q", id)
	}
	if len(stub.creates) != 1 {
		t.Fatalf("Expected one folder creation, got %d", len(stub.creates))
	}
	created := stub.creates[0]
	if created.Name != "ИД-42 ПГ Сургут, Ленина, 10" {
		t.Errorf("Unexpected created folder name %q", created.Name)
	}
	if len(created.Parents) != 1 || created.Parents[0] != "parent" {
		t.Errorf("Expected the folder under the configured parent, got %v", created.Parents)
	}
}

func TestEnsureFolderRecreatesWhenTrashed(t *testing.T) {
	stub := &driveStub{folders: map[string]folderMeta{"folder-1": {Name: "old", Trashed: true}}}
	client := newTestClient(t, stub)

	id, err := client.EnsureFolder(context.Background(), "folder-1", "fresh", "parent")
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	if id != "created-1" {
		t.Errorf("Expected a fresh folder for a trashed original, got %q", id)
	}
}

func TestEnsureFolderCreatesWithoutExistingID(t *testing.T) {
	stub := &driveStub{folders: map[string]folderMeta{}}
	client := newTestClient(t, stub)

	id, err := client.EnsureFolder(context.Background(), "", "fresh", "parent")
	if err != nil {
		t.Fatalf("EnsureFolder failed: %v", err)
	}
	if id != "created-1" {
		t.Errorf("Expected a new folder id, got %q", id)
	}
	if len(stub.gets) != 0 {
		t.Errorf("Expected no lookup without an existing id, got %v", stub.gets)
	}
}

func TestUploadFromURL(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg-bytes"))
	}))
	defer source.Close()

	stub := &driveStub{folders: map[string]folderMeta{}}
	client := newTestClient(t, stub)

	if err := client.UploadFromURL(context.Background(), source.URL+"/photo.jpg", "1_2024-5-17_9:30", "folder-1"); err != nil {
		t.Fatalf("UploadFromURL failed: %v", err)
	}
	if len(stub.creates) != 1 {
		t.Fatalf("Expected one upload, got %d", len(stub.creates))
	}
	body := stub.creates[0].Media
	if !strings.Contains(body, `"1_2024-5-17_9:30"`) {
		t.Errorf("Upload body missing the file name: %q", body)
	}
	if !strings.Contains(body, `"folder-1"`) {
		t.Errorf("Upload body missing the destination folder: %q", body)
	}
	if !strings.Contains(body, "jpeg-bytes") {
		t.Errorf("Upload body missing the media bytes: %q", body)
	}
}

func TestUploadFromURLSourceFailure(t *testing.T) {
	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer source.Close()

	stub := &driveStub{folders: map[string]folderMeta{}}
	client := newTestClient(t, stub)

	err := client.UploadFromURL(context.Background(), source.URL+"/photo.jpg", "1_2024-5-17_9:30", "folder-1")
	if err == nil {
		t.Fatal("Expected an error for a failed source download")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("Expected the source status in the error, got %v", err)
	}
	if len(stub.creates) != 0 {
		t.Errorf("Expected no upload after a failed download, got %d", len(stub.creates))
	}
}
