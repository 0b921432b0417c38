package app_test

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imghost/src/app"
	appmock "imghost/src/app/mock"
	cfg "imghost/src/configuration"
)

const publicBase = "https://pub.example.r2.dev"

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

type fixture struct {
	objects *appmock.ObjectStore
	records *appmock.MetadataStore
	service *app.ImageService
}

func newFixture(opts app.Options) *fixture {
	log := logrus.New()
	log.SetOutput(io.Discard)
	if opts.Clock == nil {
		opts.Clock = tickingClock()
	}
	objects := appmock.NewObjectStore(publicBase)
	records := appmock.NewMetadataStore()
	return &fixture{
		objects: objects,
		records: records,
		service: app.NewImageService(objects, records, opts, log),
	}
}

func (f *fixture) upload(t *testing.T, name string) *app.ImageRecord {
	t.Helper()
	result, err := f.service.Upload(context.Background(), app.UploadInput{
		Filename:    name,
		ContentType: "image/png",
		Data:        pngHeader,
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	return result.Image
}

func TestUploadValidPNG(t *testing.T) {
	f := newFixture(app.Options{})
	ctx := context.Background()

	first := f.upload(t, "cat.png")
	second := f.upload(t, "cat.png")

	assert.NotEqual(t, first.ID, second.ID)
	_, err := uuid.Parse(first.ID)
	assert.NoError(t, err)
	assert.Contains(t, first.URL, first.ID)
	assert.Equal(t, publicBase+"/"+first.ID+".png", first.URL)
	assert.Equal(t, "cat.png", first.Filename)
	assert.Equal(t, "image/png", first.Type)
	assert.Equal(t, int64(len(pngHeader)), first.Size)
	assert.Equal(t, "2024-05-01T12:00:01.000Z", first.UploadedAt)

	assert.True(t, f.objects.Has(first.ID+".png"))
	assert.Equal(t, "image/png", f.objects.ContentType(first.ID+".png"))

	stored, err := f.records.Get(ctx, app.RecordKey(first.ID))
	require.NoError(t, err)
	record, err := app.ImageRecordFromJson(stored)
	require.NoError(t, err)
	assert.Equal(t, *first, *record)
}

func TestUploadDefaultsExtension(t *testing.T) {
	f := newFixture(app.Options{})
	image := f.upload(t, "screenshot")
	assert.True(t, strings.HasSuffix(image.URL, image.ID+".jpg"))
	assert.True(t, f.objects.Has(image.ID+".jpg"))
}

func TestUploadRejectsNonImage(t *testing.T) {
	f := newFixture(app.Options{})
	_, err := f.service.Upload(context.Background(), app.UploadInput{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("hello"),
	})
	require.Error(t, err)
	assert.Equal(t, app.KindInvalidInput, app.KindOf(err))
	assert.Equal(t, 0, f.objects.Puts)
	assert.Equal(t, 0, f.records.Mutations())
}

func TestUploadRejectsOversize(t *testing.T) {
	f := newFixture(app.Options{MaxBytes: 4})
	_, err := f.service.Upload(context.Background(), app.UploadInput{
		Filename: "big.png", ContentType: "image/png", Data: pngHeader,
	})
	assert.Equal(t, app.KindInvalidInput, app.KindOf(err))
	assert.Equal(t, 0, f.objects.Puts)
}

func TestUploadVerifyContent(t *testing.T) {
	f := newFixture(app.Options{VerifyContent: true})
	_, err := f.service.Upload(context.Background(), app.UploadInput{
		Filename: "fake.png", ContentType: "image/png", Data: []byte("plain text pretending"),
	})
	assert.Equal(t, app.KindInvalidInput, app.KindOf(err))
	assert.Equal(t, 0, f.objects.Puts)

	f.upload(t, "real.png")
	assert.Equal(t, 1, f.objects.Len())
}

func TestUploadObjectStoreFailure(t *testing.T) {
	f := newFixture(app.Options{})
	f.objects.PutErr = errors.New("bucket is read-only")

	_, err := f.service.Upload(context.Background(), app.UploadInput{
		Filename: "a.png", ContentType: "image/png", Data: pngHeader,
	})
	require.Error(t, err)
	assert.Equal(t, app.KindStoreOperationFailed, app.KindOf(err))
	assert.Contains(t, err.Error(), "bucket is read-only")
	assert.Equal(t, 0, f.records.Mutations())
}

func TestUploadStoreUnavailable(t *testing.T) {
	f := newFixture(app.Options{})
	f.objects.PutErr = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	_, err := f.service.Upload(context.Background(), app.UploadInput{
		Filename: "a.png", ContentType: "image/png", Data: pngHeader,
	})
	assert.Equal(t, app.KindStoreUnavailable, app.KindOf(err))
}

func TestUploadMetadataFailurePolicies(t *testing.T) {
	input := app.UploadInput{Filename: "a.png", ContentType: "image/png", Data: pngHeader}

	t.Run("fail", func(t *testing.T) {
		f := newFixture(app.Options{MetadataFailure: cfg.MetadataFailureFail})
		f.records.PutErr = errors.New("kv write refused")

		_, err := f.service.Upload(context.Background(), input)
		require.Error(t, err)
		assert.Equal(t, app.KindStoreOperationFailed, app.KindOf(err))
		assert.Contains(t, err.Error(), "kv write refused")
		// the blob is left for reconcile
		assert.Equal(t, 1, f.objects.Len())
	})

	t.Run("rollback", func(t *testing.T) {
		f := newFixture(app.Options{MetadataFailure: cfg.MetadataFailureRollback})
		f.records.PutErr = errors.New("kv write refused")

		_, err := f.service.Upload(context.Background(), input)
		require.Error(t, err)
		assert.Equal(t, 0, f.objects.Len())
		assert.Equal(t, 1, f.objects.Deletes)
	})

	t.Run("warn", func(t *testing.T) {
		f := newFixture(app.Options{MetadataFailure: cfg.MetadataFailureWarn})
		f.records.PutErr = errors.New("kv write refused")

		result, err := f.service.Upload(context.Background(), input)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "Image uploaded but metadata storage failed", result.Warning)
		assert.NotEmpty(t, result.Image.ID)
		assert.Equal(t, 1, f.objects.Len())
	})
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(app.Options{})
	a := f.upload(t, "a.png")
	b := f.upload(t, "b.png")
	c := f.upload(t, "c.png")

	images, err := f.service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{images[0].ID, images[1].ID, images[2].ID})
}

func TestListEmpty(t *testing.T) {
	f := newFixture(app.Options{})
	images, err := f.service.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, images)
	assert.Empty(t, images)
}

func TestListSkipsMalformedRecords(t *testing.T) {
	f := newFixture(app.Options{})
	good := f.upload(t, "good.png")
	f.records.Raw(app.RecordKey("broken"), []byte("{not json"))

	images, err := f.service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, good.ID, images[0].ID)
}

func TestListSkipsNullAndBlankRecords(t *testing.T) {
	f := newFixture(app.Options{})
	good := f.upload(t, "good.png")
	f.records.Raw(app.RecordKey("nullrec"), []byte("null"))
	f.records.Raw(app.RecordKey("blank"), []byte(`{"url":"https://cdn/x.png"}`))

	images, err := f.service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, good.ID, images[0].ID)
}

func TestListStoreFailure(t *testing.T) {
	f := newFixture(app.Options{})
	f.records.ListErr = errors.New("kv offline")

	_, err := f.service.List(context.Background())
	require.Error(t, err)
	assert.Equal(t, app.KindStoreOperationFailed, app.KindOf(err))
	assert.Contains(t, err.Error(), "kv offline")
}

func TestListGetFailure(t *testing.T) {
	f := newFixture(app.Options{})
	f.upload(t, "a.png")
	f.records.GetErr = errors.New("read timeout")

	_, err := f.service.List(context.Background())
	assert.ErrorContains(t, err, "read timeout")
}

func TestSortNewestFirstMalformedLast(t *testing.T) {
	images := []app.ImageRecord{
		{ID: "x", UploadedAt: "yesterday"},
		{ID: "old", UploadedAt: "2023-01-01T00:00:00.000Z"},
		{ID: "new", UploadedAt: "2024-01-01T00:00:00.000Z"},
	}
	app.SortNewestFirst(images)
	assert.Equal(t, "new", images[0].ID)
	assert.Equal(t, "old", images[1].ID)
	assert.Equal(t, "x", images[2].ID)
}

func TestDeleteExisting(t *testing.T) {
	f := newFixture(app.Options{})
	ctx := context.Background()
	keep := f.upload(t, "keep.png")
	gone := f.upload(t, "gone.gif")

	require.NoError(t, f.service.Delete(ctx, gone.ID))
	assert.False(t, f.objects.Has(gone.ID+".gif"))
	assert.True(t, f.objects.Has(keep.ID+".png"))

	images, err := f.service.List(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, keep.ID, images[0].ID)
}

func TestDeleteMissing(t *testing.T) {
	f := newFixture(app.Options{})
	f.upload(t, "a.png")
	objectDeletes, recordMutations := f.objects.Deletes, f.records.Mutations()

	err := f.service.Delete(context.Background(), uuid.NewString())
	require.Error(t, err)
	assert.Equal(t, app.KindNotFound, app.KindOf(err))
	assert.Equal(t, objectDeletes, f.objects.Deletes)
	assert.Equal(t, recordMutations, f.records.Mutations())
}

func TestDeleteBlankID(t *testing.T) {
	f := newFixture(app.Options{})
	err := f.service.Delete(context.Background(), "  ")
	assert.Equal(t, app.KindInvalidInput, app.KindOf(err))
}

func TestDeleteUsesFallbackKey(t *testing.T) {
	f := newFixture(app.Options{})
	f.objects.Put("abc.jpg", []byte("x"), time.Now())
	f.records.Raw(app.RecordKey("abc"), []byte(`{"id":"abc","url":""}`))

	require.NoError(t, f.service.Delete(context.Background(), "abc"))
	assert.False(t, f.objects.Has("abc.jpg"))
	_, err := f.records.Get(context.Background(), app.RecordKey("abc"))
	assert.Error(t, err)
}

func TestDeleteMalformedRecordMutatesNothing(t *testing.T) {
	f := newFixture(app.Options{})
	ctx := context.Background()
	f.objects.Put("abc.png", []byte("x"), time.Now())
	f.records.Raw(app.RecordKey("abc"), []byte("{not json"))

	err := f.service.Delete(ctx, "abc")
	require.Error(t, err)
	assert.Equal(t, app.KindStoreOperationFailed, app.KindOf(err))
	assert.Equal(t, 0, f.objects.Deletes)
	assert.Equal(t, 0, f.records.Mutations())
	assert.True(t, f.objects.Has("abc.png"))
	_, err = f.records.Get(ctx, app.RecordKey("abc"))
	assert.NoError(t, err)
}

func TestDeleteObjectFailureKeepsRecord(t *testing.T) {
	f := newFixture(app.Options{})
	image := f.upload(t, "a.png")
	f.objects.DeleteErr = errors.New("denied")

	err := f.service.Delete(context.Background(), image.ID)
	assert.Equal(t, app.KindStoreOperationFailed, app.KindOf(err))
	_, getErr := f.records.Get(context.Background(), app.RecordKey(image.ID))
	assert.NoError(t, getErr)
}

func TestPing(t *testing.T) {
	f := newFixture(app.Options{})
	assert.NoError(t, f.service.Ping(context.Background()))

	f.objects.PingErr = errors.New("bucket missing")
	assert.ErrorContains(t, f.service.Ping(context.Background()), "bucket missing")
}
