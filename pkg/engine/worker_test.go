package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/de-bkg/gnssd/pkg/catalog"
	"github.com/de-bkg/gnssd/pkg/ident"
	"github.com/de-bkg/gnssd/pkg/jobqueue"
	"github.com/de-bkg/gnssd/pkg/jobstate"
	"github.com/stretchr/testify/assert"
)

func newTestWorkerDeps(t *testing.T) (string, *jobstate.Store, *catalog.Ledger) {
	t.Helper()
	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	assert.NoError(t, os.MkdirAll(workDir, 0755))

	id, err := ident.New("ABCD00DNK", 2019, 152, 'a')
	assert.NoError(t, err)
	dayDir := filepath.Join(workDir, id.Site, "2019", "152")
	assert.NoError(t, os.MkdirAll(dayDir, 0755))

	store := jobstate.NewStore(workDir)
	lock, err := store.Acquire(id)
	assert.NoError(t, err)
	assert.NoError(t, store.Write(lock, jobstate.Queued))
	assert.NoError(t, store.Release(id, lock))

	ledger, err := catalog.NewLedger(filepath.Join(root, "ledger.toml"))
	assert.NoError(t, err)

	return workDir, store, ledger
}

func marshalJob(t *testing.T, job jobqueue.Job) []byte {
	t.Helper()
	b, err := json.Marshal(job)
	assert.NoError(t, err)
	return b
}

func TestRunWorkerProcessesQueuedJob(t *testing.T) {
	workDir, store, ledger := newTestWorkerDeps(t)
	content := marshalJob(t, jobqueue.Job{
		Site: "ABCD00DNK", Year: 2019, Doy: 152, Hour: "a",
		Interval: 30, Kind: jobqueue.KindFTP, RSFile: "rs.a.json",
	})

	code := RunWorker(content, workDir, store, ledger)
	assert.Equal(t, ExitOK, code)

	id, err := ident.New("ABCD00DNK", 2019, 152, 'a')
	assert.NoError(t, err)
	lock, err := store.Acquire(id)
	assert.NoError(t, err)
	st, err := store.Read(lock)
	assert.NoError(t, err)
	assert.Equal(t, jobstate.Processed, st)
	assert.NoError(t, store.Release(id, lock))
}

func TestRunWorkerMarksDayJobProcessedInLedger(t *testing.T) {
	workDir, store, ledger := newTestWorkerDeps(t)
	id, err := ident.New("ABCD00DNK", 2019, 152, '0')
	assert.NoError(t, err)
	lock, err := store.Acquire(id)
	assert.NoError(t, err)
	assert.NoError(t, store.Write(lock, jobstate.Queued))
	assert.NoError(t, store.Release(id, lock))

	content := marshalJob(t, jobqueue.Job{
		Site: "ABCD00DNK", Year: 2019, Doy: 152, Hour: "0",
		Interval: 30, Kind: jobqueue.KindHour2Daily, RSFile: "rs.0.json",
	})

	code := RunWorker(content, workDir, store, ledger)
	assert.Equal(t, ExitOK, code)
	assert.True(t, ledger.Processed(id))
}

func TestRunWorkerRejectsMalformedJob(t *testing.T) {
	workDir, store, ledger := newTestWorkerDeps(t)
	code := RunWorker([]byte("not json"), workDir, store, ledger)
	assert.Equal(t, ExitError, code)
}

func TestRunWorkerRejectsUnknownKind(t *testing.T) {
	workDir, store, ledger := newTestWorkerDeps(t)
	content := marshalJob(t, jobqueue.Job{
		Site: "ABCD00DNK", Year: 2019, Doy: 152, Hour: "a",
		Interval: 30, Kind: "bogus", RSFile: "rs.a.json",
	})
	code := RunWorker(content, workDir, store, ledger)
	assert.Equal(t, ExitError, code)
}
