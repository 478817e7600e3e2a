package report

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trafficai/violation-reporter/internal/analysis"
	"github.com/trafficai/violation-reporter/internal/dedup"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) ClassifyImage(ctx context.Context, data []byte, mimeType string) (*analysis.Verdict, error) {
	args := m.Called(ctx, data, mimeType)
	v, _ := args.Get(0).(*analysis.Verdict)
	return v, args.Error(1)
}

func (m *mockClassifier) ClassifyFrames(ctx context.Context, frames []media.Frame) (*analysis.Verdict, error) {
	args := m.Called(ctx, frames)
	v, _ := args.Get(0).(*analysis.Verdict)
	return v, args.Error(1)
}

type mockStations struct {
	mock.Mock
}

func (m *mockStations) NearbyStations(ctx context.Context, at geo.Coordinate) ([]analysis.PoliceStation, error) {
	args := m.Called(ctx, at)
	s, _ := args.Get(0).([]analysis.PoliceStation)
	return s, args.Error(1)
}

type mockSampler struct {
	mock.Mock
}

func (m *mockSampler) SampleFrames(ctx context.Context, blob media.Blob, frameCount int, interval float64) ([]media.Frame, error) {
	args := m.Called(ctx, blob, frameCount, interval)
	f, _ := args.Get(0).([]media.Frame)
	return f, args.Error(1)
}

func (m *mockSampler) Thumbnail(ctx context.Context, blob media.Blob, offset float64) (media.Frame, error) {
	args := m.Called(ctx, blob, offset)
	return args.Get(0).(media.Frame), args.Error(1)
}

type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) Archive(_ context.Context, key, _ string, data io.Reader) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if _, err := io.ReadAll(data); err != nil {
		return "", err
	}
	a.keys = append(a.keys, key)
	return "/archive/" + key, nil
}

// failingRepo rejects every save.
type failingRepo struct {
	*MemoryRepository
}

func (failingRepo) Save(context.Context, *Report) error {
	return errors.New("database is locked")
}

var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
	'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
	'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

func jpegBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

type harness struct {
	svc        *SubmitService
	local      *dedup.MemoryRegistry
	repo       Repository
	classifier *mockClassifier
	stations   *mockStations
	sampler    *mockSampler
	archive    *fakeArchive
	metadata   *geo.Coordinate
}

func newHarness(t *testing.T, repo Repository, locator geo.Locator) *harness {
	t.Helper()
	hasher, err := fingerprint.NewHasher(fingerprint.AlgorithmSHA256)
	require.NoError(t, err)

	h := &harness{
		local:      dedup.NewMemoryRegistry(),
		repo:       repo,
		classifier: &mockClassifier{},
		stations:   &mockStations{},
		sampler:    &mockSampler{},
		archive:    &fakeArchive{},
	}
	h.svc = NewSubmitService(SubmitDeps{
		Hasher:     hasher,
		Guard:      dedup.NewGuard(h.local, repo, discardLogger()),
		Sampler:    h.sampler,
		Classifier: h.classifier,
		Stations:   h.stations,
		Locator:    locator,
		Archive:    h.archive,
		Repo:       repo,
		Metadata:   func([]byte) *geo.Coordinate { return h.metadata },
		Logger:     discardLogger(),
	})
	return h
}

func noViolation() *analysis.Verdict {
	return &analysis.Verdict{
		Violations:       []analysis.Violation{{ViolationType: analysis.ViolationNone, Severity: analysis.SeverityLow}},
		SummaryReasoning: "Traffic is flowing normally.",
		Environment:      analysis.Environment{TimeOfDay: "Night", Weather: "Rainy", RoadType: "Highway"},
	}
}

func TestSubmit_Image(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryRepository(), nil)
	data := jpegBytes(t, 10)
	h.metadata = &geo.Coordinate{Latitude: 12.5, Longitude: 77.25}

	v := sampleVerdict()
	h.classifier.On("ClassifyImage", mock.Anything, data, "image/jpeg").Return(&v, nil)
	stations := []analysis.PoliceStation{{Name: "Central", Latitude: 12.51, Longitude: 77.26, DistanceKM: 1.5}}
	h.stations.On("NearbyStations", mock.Anything, *h.metadata).Return(stations, nil)

	out, err := h.svc.Submit(ctx, SubmitInput{Data: data, Name: "capture.jpg", UserID: "alice", Username: "alice"})
	require.NoError(t, err)

	rep := out.Report
	assert.Regexp(t, `^REP-`, rep.ID)
	assert.Equal(t, media.KindImage, rep.MediaType)
	assert.Equal(t, "image/jpeg", rep.MIMEType)
	assert.Equal(t, "alice", rep.UserID)
	assert.Equal(t, *h.metadata, *rep.Location)
	assert.True(t, rep.IsViolation())
	assert.Equal(t, "/archive/"+rep.MediaHash.String()+".jpg", rep.MediaURL)
	assert.Equal(t, stations, out.Stations)
	assert.Nil(t, out.Thumbnail)

	saved, err := h.repo.FindByID(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.MediaHash, saved.MediaHash)
	assert.Equal(t, 1, h.local.Len())
	h.classifier.AssertExpectations(t)
	h.stations.AssertExpectations(t)
}

// orderedLocator appends "locate" to a shared call log.
type orderedLocator struct {
	calls *[]string
	at    geo.Coordinate
}

func (l orderedLocator) Locate(context.Context) (*geo.Coordinate, error) {
	*l.calls = append(*l.calls, "locate")
	at := l.at
	return &at, nil
}

func TestSubmit_LocationResolvedBeforeAnalysis(t *testing.T) {
	var calls []string
	device := geo.Coordinate{Latitude: 40.4, Longitude: -3.7}
	h := newHarness(t, NewMemoryRepository(), orderedLocator{calls: &calls, at: device})
	h.svc.SetSampling(2, 1, 0.5)

	frames := []media.Frame{{Index: 0, Data: []byte{1}, MIMEType: "image/jpeg"}}
	isVideo := mock.MatchedBy(func(b media.Blob) bool { return b.Kind == media.KindVideo })
	h.sampler.On("Thumbnail", mock.Anything, isVideo, 0.5).Return(media.Frame{}, nil).
		Run(func(mock.Arguments) { calls = append(calls, "thumbnail") })
	h.sampler.On("SampleFrames", mock.Anything, isVideo, 2, 1.0).Return(frames, nil).
		Run(func(mock.Arguments) { calls = append(calls, "sample") })
	h.classifier.On("ClassifyFrames", mock.Anything, frames).Return(noViolation(), nil).
		Run(func(mock.Arguments) { calls = append(calls, "classify") })

	out, err := h.svc.Submit(context.Background(), SubmitInput{Data: mp4Header, Name: "clip.mp4"})
	require.NoError(t, err)
	assert.Equal(t, device, *out.Report.Location)
	assert.Equal(t, []string{"locate", "thumbnail", "sample", "classify"}, calls)
}

func TestSubmit_Video(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryRepository(), nil)
	h.svc.SetSampling(3, 2, 0.25)

	frames := []media.Frame{
		{Index: 0, Timestamp: 0, Data: []byte{1}, MIMEType: "image/jpeg"},
		{Index: 1, Timestamp: 2, Data: []byte{2}, MIMEType: "image/jpeg"},
	}
	thumb := media.Frame{Timestamp: 0.25, Data: []byte{9}, MIMEType: "image/jpeg"}
	isVideo := mock.MatchedBy(func(b media.Blob) bool { return b.Kind == media.KindVideo })
	h.sampler.On("Thumbnail", mock.Anything, isVideo, 0.25).Return(thumb, nil)
	h.sampler.On("SampleFrames", mock.Anything, isVideo, 3, 2.0).Return(frames, nil)
	h.classifier.On("ClassifyFrames", mock.Anything, frames).Return(noViolation(), nil)

	out, err := h.svc.Submit(ctx, SubmitInput{Data: mp4Header, Name: "clip.mp4"})
	require.NoError(t, err)

	assert.Equal(t, media.KindVideo, out.Report.MediaType)
	assert.Equal(t, 2, out.Report.FrameCount)
	assert.False(t, out.Report.IsViolation())
	require.NotNil(t, out.Thumbnail)
	assert.Equal(t, thumb, *out.Thumbnail)
	assert.Empty(t, out.Stations)
	h.sampler.AssertExpectations(t)
	h.stations.AssertNotCalled(t, "NearbyStations", mock.Anything, mock.Anything)
}

func TestSubmit_VideoThumbnailFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	frames := []media.Frame{{Index: 0, Data: []byte{1}, MIMEType: "image/jpeg"}}
	h.sampler.On("Thumbnail", mock.Anything, mock.Anything, mock.Anything).Return(media.Frame{}, media.ErrInvalidDuration)
	h.sampler.On("SampleFrames", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(frames, nil)
	h.classifier.On("ClassifyFrames", mock.Anything, frames).Return(noViolation(), nil)

	out, err := h.svc.Submit(context.Background(), SubmitInput{Data: mp4Header})
	require.NoError(t, err)
	assert.Nil(t, out.Thumbnail)
}

func TestSubmit_VideoSamplingFails(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	h.sampler.On("Thumbnail", mock.Anything, mock.Anything, mock.Anything).Return(media.Frame{}, nil)
	h.sampler.On("SampleFrames", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, media.ErrSamplingTimeout)

	_, err := h.svc.Submit(context.Background(), SubmitInput{Data: mp4Header})
	assert.ErrorIs(t, err, media.ErrSamplingTimeout)
	assert.Equal(t, 0, h.local.Len(), "failed analysis must not record the fingerprint")
	h.classifier.AssertNotCalled(t, "ClassifyFrames", mock.Anything, mock.Anything)
}

func TestSubmit_VideoNoFrames(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	h.sampler.On("Thumbnail", mock.Anything, mock.Anything, mock.Anything).Return(media.Frame{}, nil)
	h.sampler.On("SampleFrames", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]media.Frame{}, nil)

	_, err := h.svc.Submit(context.Background(), SubmitInput{Data: mp4Header})
	assert.ErrorIs(t, err, media.ErrNoFrames)
}

func TestSubmit_Unsupported(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	_, err := h.svc.Submit(context.Background(), SubmitInput{Data: []byte("plain text"), Name: "notes.txt"})
	assert.ErrorIs(t, err, media.ErrUnsupportedMedia)
}

func TestSubmit_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, NewMemoryRepository(), nil)
	data := jpegBytes(t, 20)
	h.classifier.On("ClassifyImage", mock.Anything, mock.Anything, mock.Anything).Return(noViolation(), nil).Once()

	_, err := h.svc.Submit(ctx, SubmitInput{Data: data})
	require.NoError(t, err)

	_, err = h.svc.Submit(ctx, SubmitInput{Data: data, Name: "renamed.jpg"})
	assert.ErrorIs(t, err, dedup.ErrDuplicate)
	h.classifier.AssertNumberOfCalls(t, "ClassifyImage", 1)
}

func TestSubmit_DuplicateInDurableStoreOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	h := newHarness(t, repo, nil)
	data := jpegBytes(t, 30)

	hasher, _ := fingerprint.NewHasher(fingerprint.AlgorithmSHA256)
	fp, _ := hasher.Sum(data)
	require.NoError(t, repo.Save(ctx, New(media.KindImage, fp)))

	_, err := h.svc.Submit(ctx, SubmitInput{Data: data})
	assert.ErrorIs(t, err, dedup.ErrDuplicate)
}

func TestSubmit_SaveFailureKeepsLocalRecord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, failingRepo{NewMemoryRepository()}, nil)
	data := jpegBytes(t, 40)
	h.classifier.On("ClassifyImage", mock.Anything, mock.Anything, mock.Anything).Return(noViolation(), nil)

	_, err := h.svc.Submit(ctx, SubmitInput{Data: data})
	require.Error(t, err)
	assert.Equal(t, 1, h.local.Len())

	_, err = h.svc.Submit(ctx, SubmitInput{Data: data})
	assert.ErrorIs(t, err, dedup.ErrDuplicate)
}

func TestSubmit_ArchiveFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	h.archive.err = errors.New("access denied")
	h.classifier.On("ClassifyImage", mock.Anything, mock.Anything, mock.Anything).Return(noViolation(), nil)

	out, err := h.svc.Submit(context.Background(), SubmitInput{Data: jpegBytes(t, 50)})
	require.NoError(t, err)
	assert.Empty(t, out.Report.MediaURL)
}

func TestSubmit_LocationFallsBackToDevice(t *testing.T) {
	device := &geo.Coordinate{Latitude: -33.87, Longitude: 151.21}
	h := newHarness(t, NewMemoryRepository(), geo.StaticLocator{Position: device})
	h.classifier.On("ClassifyImage", mock.Anything, mock.Anything, mock.Anything).Return(noViolation(), nil)

	out, err := h.svc.Submit(context.Background(), SubmitInput{Data: jpegBytes(t, 60)})
	require.NoError(t, err)
	require.NotNil(t, out.Report.Location)
	assert.Equal(t, *device, *out.Report.Location)
}

func TestSubmit_NoLocationSkipsStations(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), geo.StaticLocator{})
	v := sampleVerdict()
	h.classifier.On("ClassifyImage", mock.Anything, mock.Anything, mock.Anything).Return(&v, nil)

	out, err := h.svc.Submit(context.Background(), SubmitInput{Data: jpegBytes(t, 70)})
	require.NoError(t, err)
	assert.Nil(t, out.Report.Location)
	assert.True(t, out.Report.IsViolation())
	h.stations.AssertNotCalled(t, "NearbyStations", mock.Anything, mock.Anything)
}

func TestSubmit_StationLookupFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	h.metadata = &geo.Coordinate{Latitude: 1, Longitude: 2}
	v := sampleVerdict()
	h.classifier.On("ClassifyImage", mock.Anything, mock.Anything, mock.Anything).Return(&v, nil)
	h.stations.On("NearbyStations", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	out, err := h.svc.Submit(context.Background(), SubmitInput{Data: jpegBytes(t, 80)})
	require.NoError(t, err)
	assert.Empty(t, out.Stations)

	_, err = h.repo.FindByID(context.Background(), out.Report.ID)
	assert.NoError(t, err)
}

func TestSubmit_ClassifierError(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	h.classifier.On("ClassifyImage", mock.Anything, mock.Anything, mock.Anything).Return(nil, analysis.ErrInvalidVerdict)

	_, err := h.svc.Submit(context.Background(), SubmitInput{Data: jpegBytes(t, 90)})
	assert.ErrorIs(t, err, analysis.ErrInvalidVerdict)
	assert.Equal(t, 0, h.local.Len())
}

func TestSubmit_NoClassifier(t *testing.T) {
	h := newHarness(t, NewMemoryRepository(), nil)
	h.svc.deps.Classifier = nil

	_, err := h.svc.Submit(context.Background(), SubmitInput{Data: jpegBytes(t, 100)})
	assert.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.Equal(t, 0, h.local.Len())
}

func TestService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	h := newHarness(t, repo, nil)
	a := sampleReport(1, "alice", baseTime)
	b := sampleReport(2, "bob", baseTime.Add(1))
	require.NoError(t, repo.Save(ctx, a))
	require.NoError(t, repo.Save(ctx, b))

	all, err := h.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, ids(all))

	mine, err := h.svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids(mine))

	require.NoError(t, h.svc.Delete(ctx, a.ID))
	_, err = h.svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrReportNotFound)
	assert.ErrorIs(t, h.svc.Delete(ctx, a.ID), ErrReportNotFound)
}
