package delivery

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewatch/internal/journal"
)

func TestDrainer_DrainShipsPendingBlobs(t *testing.T) {
	uploader := newFakeUploader()
	backlog := testBacklog(t)
	counters := &Counters{}

	require.NoError(t, backlog.Put("detection_1.jpg", []byte("jpeg")))
	require.NoError(t, backlog.Put("detection_1.json", []byte("{}")))

	d := NewDrainer(backlog, uploader, counters, nil, time.Hour)
	drained := d.Drain()

	assert.Equal(t, 2, drained)
	assert.Equal(t, uint64(2), counters.Delivered.Load())
	assert.Len(t, uploader.uploaded(), 2)

	n, err := backlog.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrainer_FailedUploadLeavesFile(t *testing.T) {
	uploader := newFakeUploader()
	uploader.failNames["detection_2.json"] = true
	backlog := testBacklog(t)
	counters := &Counters{}

	require.NoError(t, backlog.Put("detection_2.jpg", []byte("jpeg")))
	require.NoError(t, backlog.Put("detection_2.json", []byte("{}")))

	d := NewDrainer(backlog, uploader, counters, nil, time.Hour)
	drained := d.Drain()

	// Each file's fate is independent
	assert.Equal(t, 1, drained)
	assert.Equal(t, uint64(1), counters.Delivered.Load())

	names, err := backlog.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"detection_2.json"}, names)

	// The leftover drains on the next pass once the failure clears
	delete(uploader.failNames, "detection_2.json")
	assert.Equal(t, 1, d.Drain())
	n, err := backlog.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDrainer_EmptyBacklogIsNoop(t *testing.T) {
	uploader := newFakeUploader()
	backlog := testBacklog(t)

	d := NewDrainer(backlog, uploader, &Counters{}, nil, time.Hour)
	assert.Equal(t, 0, d.Drain())
	assert.Empty(t, uploader.uploaded())
}

func TestDrainer_KickTriggersEarlyDrain(t *testing.T) {
	uploader := newFakeUploader()
	backlog := testBacklog(t)
	counters := &Counters{}

	// Long interval: only a kick can trigger the drain
	d := NewDrainer(backlog, uploader, counters, nil, time.Hour)
	d.Start()
	defer d.Stop()

	require.NoError(t, backlog.Put("detection_3.jpg", []byte("jpeg")))
	d.Kick()

	require.Eventually(t, func() bool {
		n, err := backlog.Count()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, uploader.uploaded(), "detection_3.jpg")
}

func TestDrainer_JournalCounterPerDrainedFile(t *testing.T) {
	uploader := newFakeUploader()
	backlog := testBacklog(t)

	jnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer jnl.Close()

	require.NoError(t, backlog.Put("detection_4.jpg", []byte("jpeg")))
	require.NoError(t, backlog.Put("detection_4.json", []byte("{}")))

	d := NewDrainer(backlog, uploader, &Counters{}, jnl, time.Hour)
	require.Equal(t, 2, d.Drain())

	delivered, err := jnl.Counter(CounterDelivered)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), delivered)
}
