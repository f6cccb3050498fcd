package mirror

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/balkashynov/wotrack/internal/filestore"
	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeContents is an in-memory GitHub contents API for one repository
type fakeContents struct {
	mu      sync.Mutex
	files   map[string][]byte
	auth    []string
	puts    int
	failPut bool
	// bumpOnce changes a file behind the client's back before the next put
	bumpOnce string
}

func newFakeContents() *fakeContents {
	return &fakeContents{files: make(map[string][]byte)}
}

func (f *fakeContents) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.auth = append(f.auth, r.Header.Get("Authorization"))
	const prefix = "/repos/shop/floor/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, prefix)

	switch r.Method {
	case http.MethodGet:
		content, ok := f.files[name]
		if !ok {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		encoded := base64.StdEncoding.EncodeToString(content)
		// the real API wraps base64 content at 60 columns
		if len(encoded) > 60 {
			encoded = encoded[:60] + "\n" + encoded[60:]
		}
		_ = json.NewEncoder(w).Encode(contentResponse{
			Path: name, SHA: BlobSHA(content), Content: encoded, Encoding: "base64",
		})
	case http.MethodPut:
		if f.failPut {
			http.Error(w, `{"message":"Server Error"}`, http.StatusInternalServerError)
			return
		}
		if f.bumpOnce == name {
			f.files[name] = append(f.files[name], []byte("other station\n")...)
			f.bumpOnce = ""
		}
		body, _ := io.ReadAll(r.Body)
		var req putRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		current, exists := f.files[name]
		if exists && req.SHA != BlobSHA(current) || !exists && req.SHA != "" {
			http.Error(w, `{"message":"sha does not match"}`, http.StatusConflict)
			return
		}
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.files[name] = content
		f.puts++
		var resp putResponse
		resp.Content.SHA = BlobSHA(content)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type mirrorFixture struct {
	t      *testing.T
	ctx    context.Context
	remote *fakeContents
	server *httptest.Server
	client *Client
	local  *filestore.Store
	store  *Store
	clock  clockwork.FakeClock
}

func newMirrorFixture(t *testing.T, token string) *mirrorFixture {
	remote := newFakeContents()
	server := httptest.NewServer(remote)
	t.Cleanup(server.Close)

	local, err := filestore.OpenCSV(t.TempDir(), nil)
	require.NoError(t, err)

	client := NewClient(server.Client(), ClientConfig{APIBase: server.URL, Repo: "shop/floor", Token: token})
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.May, 5, 10, 0, 0, 0, time.UTC))
	return &mirrorFixture{
		t:      t,
		ctx:    context.Background(),
		remote: remote,
		server: server,
		client: client,
		local:  local,
		store:  New(local, client, clock, zap.NewNop()),
		clock:  clock,
	}
}

func (f *mirrorFixture) createOrder(id string) {
	f.t.Helper()
	require.NoError(f.t, f.store.CreateWorkOrder(f.ctx, &models.WorkOrder{
		OrderNumber: id,
		Product:     "Agenda",
		Quantity:    10,
		Status:      models.WorkOrderActive,
		Processes:   []string{"Montagem do kit"},
		CreatedAt:   f.clock.Now(),
	}))
}

func TestAuthorizationScheme(t *testing.T) {
	assert.Equal(t, "", authorization(""))
	assert.Equal(t, "Bearer github_pat_11ABC", authorization("github_pat_11ABC"))
	assert.Equal(t, "token ghp_classic", authorization("ghp_classic"))
}

func TestBlobSHA(t *testing.T) {
	// git hash-object of an empty file
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", BlobSHA(nil))
}

func TestClientGetMissingFile(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")

	file, err := f.client.Get(f.ctx, "work_orders.csv")
	require.NoError(t, err)
	assert.Nil(t, file)
	assert.Equal(t, []string{"token ghp_classic"}, f.remote.auth)
}

func TestClientPutConflict(t *testing.T) {
	f := newMirrorFixture(t, "github_pat_x")
	f.remote.files["a.csv"] = []byte("x\n")

	_, err := f.client.Put(f.ctx, "a.csv", []byte("y\n"), "stale", "msg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "Bearer github_pat_x", f.remote.auth[0])
}

func TestWritesArePushed(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")
	f.createOrder("501")

	key := tracker.Key{WorkOrderID: "501", Process: "Montagem do kit"}
	timer := tracker.NewTimer(key, f.clock.Now())
	require.NoError(t, tracker.Start(timer, f.clock.Now()))
	require.NoError(t, f.store.SaveTimer(f.ctx, key, timer))

	local, err := f.local.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, local[filestore.WorkOrdersCSV], f.remote.files[filestore.WorkOrdersCSV])
	assert.Equal(t, local[filestore.ProcessTimersCSV], f.remote.files[filestore.ProcessTimersCSV])
	assert.NoError(t, f.store.LastError())
	assert.Equal(t, f.clock.Now(), f.store.LastPush())

	// unchanged files are not uploaded again
	puts := f.remote.puts
	pushed, err := f.store.Push(f.ctx, "manual")
	require.NoError(t, err)
	assert.Empty(t, pushed)
	assert.Equal(t, puts, f.remote.puts)
}

func TestTrackerMutationsArePushed(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")
	f.createOrder("505")
	tr := tracker.New(f.store, f.store, f.clock, nil)
	key := tracker.Key{WorkOrderID: "505", Process: "Montagem do kit"}

	_, err := tr.Start(f.ctx, key)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = tr.Pause(f.ctx, key)
	require.NoError(t, err)

	local, err := f.local.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, local[filestore.ProcessTimersCSV], f.remote.files[filestore.ProcessTimersCSV])
	assert.Contains(t, string(f.remote.files[filestore.ProcessTimersCSV]), "505,Montagem do kit,60,paused")
}

func TestPushFailureKeepsLocalWrite(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")
	f.remote.failPut = true

	f.createOrder("502")

	order, err := f.store.GetWorkOrder(f.ctx, "502")
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Error(t, f.store.LastError())
	assert.Contains(t, f.store.LastError().Error(), "500")
	assert.Empty(t, f.remote.files)

	f.remote.failPut = false
	pushed, err := f.store.Push(f.ctx, "retry")
	require.NoError(t, err)
	assert.Contains(t, pushed, filestore.WorkOrdersCSV)
	assert.NoError(t, f.store.LastError())
}

func TestPushRetriesAfterConcurrentChange(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")
	f.createOrder("503")

	f.remote.bumpOnce = filestore.WorkOrdersCSV
	f.createOrder("504")

	require.NoError(t, f.store.LastError())
	local, err := f.local.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, local[filestore.WorkOrdersCSV], f.remote.files[filestore.WorkOrdersCSV])
}

func TestPullReplacesLocalFiles(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")
	f.createOrder("505")

	f.remote.files[filestore.WorkOrdersCSV] = []byte(
		"order_number,product,quantity,created_at,status,processes,finalized_at\n" +
			"900,Livro,3,2025-05-01T08:00:00Z,active,Montagem do kit,\n")

	pulled, err := f.store.Pull(f.ctx)
	require.NoError(t, err)
	assert.Contains(t, pulled, filestore.WorkOrdersCSV)

	orders, err := f.store.ListWorkOrders(f.ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "900", orders[0].OrderNumber)
}

func TestPullRejectsUnreadableRemote(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")
	f.createOrder("506")

	f.remote.files[filestore.ProcessTimersCSV] = []byte("work_order_id\n\"broken\n")

	_, err := f.store.Pull(f.ctx)
	require.Error(t, err)

	order, err := f.store.GetWorkOrder(f.ctx, "506")
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestStatus(t *testing.T) {
	f := newMirrorFixture(t, "ghp_classic")
	f.createOrder("507")

	statuses, err := f.store.Status(f.ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.True(t, st.InSync(), st.Name)
	}

	f.remote.files[filestore.WorkOrdersCSV] = []byte("changed elsewhere\n")
	statuses, err = f.store.Status(f.ctx)
	require.NoError(t, err)
	assert.False(t, statuses[0].InSync())
	assert.Equal(t, filestore.WorkOrdersCSV, statuses[0].Name)
}
