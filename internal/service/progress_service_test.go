package service

import (
	"context"
	"lms_backend/internal/model"
	"lms_backend/internal/repository"
	"lms_backend/internal/util"
	"lms_backend/pkg/logger"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

type fakeInvalidator struct {
	keys   []string
	groups []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeInvalidator) InvalidateGroup(ctx context.Context, group string) error {
	f.groups = append(f.groups, group)
	return nil
}

type issuerCall struct {
	userID         uint
	courseID       uint
	completionRate float64
	studentName    string
}

type fakeIssuer struct {
	calls []issuerCall
}

func (f *fakeIssuer) Attempt(userID, courseID uint, completionRate float64, studentName string) {
	f.calls = append(f.calls, issuerCall{userID, courseID, completionRate, studentName})
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Course{},
		&model.Lesson{},
		&model.Topic{},
		&model.Enrollment{},
		&model.CourseProgress{},
		&model.Certificate{},
	))
	return db
}

type progressFixture struct {
	svc          *ProgressService
	progressRepo *repository.ProgressRepository
	cache        *fakeInvalidator
	issuer       *fakeIssuer
	course       *model.Course
	lessonA      *model.Lesson
	lessonB      *model.Lesson
	topic1       *model.Topic
	topic2       *model.Topic
}

// 固定结构：课程两课，A 有小节 t1/t2，B 无小节（standalone）
func newProgressFixture(t *testing.T) *progressFixture {
	t.Helper()
	db := openTestDB(t)

	course := &model.Course{Title: "C Programming", Slug: "c-programming", Published: true}
	require.NoError(t, db.Create(course).Error)

	lessonA := &model.Lesson{CourseID: course.ID, Title: "Pointers", Order: 1}
	lessonB := &model.Lesson{CourseID: course.ID, Title: "Summary", Order: 2}
	require.NoError(t, db.Create(lessonA).Error)
	require.NoError(t, db.Create(lessonB).Error)

	topic1 := &model.Topic{LessonID: lessonA.ID, Title: "Addresses", Order: 1}
	topic2 := &model.Topic{LessonID: lessonA.ID, Title: "Arithmetic", Order: 2}
	require.NoError(t, db.Create(topic1).Error)
	require.NoError(t, db.Create(topic2).Error)

	cache := &fakeInvalidator{}
	issuer := &fakeIssuer{}
	progressRepo := repository.NewProgressRepository(db)
	svc := NewProgressService(
		repository.NewCourseRepository(db),
		progressRepo,
		repository.NewEnrollmentRepository(db),
		repository.NewUserRepository(db),
		cache,
		issuer,
	)

	return &progressFixture{
		svc:          svc,
		progressRepo: progressRepo,
		cache:        cache,
		issuer:       issuer,
		course:       course,
		lessonA:      lessonA,
		lessonB:      lessonB,
		topic1:       topic1,
		topic2:       topic2,
	}
}

func ptrUint(v uint) *uint {
	return &v
}

const testUserID = uint(7)

func (f *progressFixture) record(t *testing.T) *model.CourseProgress {
	t.Helper()
	progress, err := f.progressRepo.FindByUserAndCourse(testUserID, f.course.ID)
	require.NoError(t, err)
	return progress
}

func TestAdvanceTopicsThenStandalone(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	err := f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), nil, ptrUint(f.topic2.ID)},
		IsLessonCompleted:    true,
	})
	require.NoError(t, err)

	progress := f.record(t)
	require.NotNil(t, progress)
	require.ElementsMatch(t, []uint{f.lessonA.ID}, []uint(progress.CompletedLessonIDs))
	require.ElementsMatch(t, []uint{f.topic1.ID, f.topic2.ID}, []uint(progress.CompletedTopicIDs))
	require.Equal(t, 1, progress.CompletedLessons)
	require.Equal(t, 2, progress.TotalLessons)
	require.Equal(t, 2, progress.TotalTopics)
	require.InDelta(t, 45.0, progress.CompletionRate, 1e-9)

	err = f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		StandaloneLessonID: ptrUint(f.lessonB.ID),
		IsLessonCompleted:  true,
	})
	require.NoError(t, err)

	progress = f.record(t)
	require.ElementsMatch(t, []uint{f.lessonA.ID, f.lessonB.ID}, []uint(progress.CompletedLessonIDs))
	require.InDelta(t, 90.0, progress.CompletionRate, 1e-9)

	// 每次成功推进都触发一次发证尝试
	require.Len(t, f.issuer.calls, 2)
	require.InDelta(t, 90.0, f.issuer.calls[1].completionRate, 1e-9)
	// 每次成功写入都失效进度缓存和已报名课程分组
	require.Len(t, f.cache.keys, 2)
	require.Len(t, f.cache.groups, 2)
}

func TestAdvanceStandaloneWithUnfinishedTopics(t *testing.T) {
	f := newProgressFixture(t)

	err := f.svc.Advance(context.Background(), testUserID, f.course.ID, AdvanceRequest{
		StandaloneLessonID: ptrUint(f.lessonA.ID),
		IsLessonCompleted:  true,
	})
	require.ErrorIs(t, err, util.ErrIncompleteDependency)

	// 失败不落库
	require.Nil(t, f.record(t))
	require.Empty(t, f.issuer.calls)
	require.Empty(t, f.cache.keys)
}

func TestAdvanceUnknownTopic(t *testing.T) {
	f := newProgressFixture(t)

	err := f.svc.Advance(context.Background(), testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(99999)},
	})
	require.ErrorIs(t, err, util.ErrUnknownTopic)
	require.Nil(t, f.record(t))
}

func TestAdvanceUnknownStandaloneLesson(t *testing.T) {
	f := newProgressFixture(t)

	err := f.svc.Advance(context.Background(), testUserID, f.course.ID, AdvanceRequest{
		StandaloneLessonID: ptrUint(99999),
		IsLessonCompleted:  true,
	})
	require.ErrorIs(t, err, util.ErrUnknownLesson)
}

func TestAdvanceCourseNotFound(t *testing.T) {
	f := newProgressFixture(t)

	err := f.svc.Advance(context.Background(), testUserID, 424242, AdvanceRequest{})
	require.ErrorIs(t, err, util.ErrCourseNotFound)
}

func TestAdvanceIdempotentTopics(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	req := AdvanceRequest{NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID)}}
	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, req))
	before := f.record(t)

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, req))
	after := f.record(t)

	require.Equal(t, len(before.CompletedTopicIDs), len(after.CompletedTopicIDs))
	require.Equal(t, before.CompletionRate, after.CompletionRate)
}

func TestAdvanceEmptyRequestRepersists(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID)},
	}))

	// 空请求合法，只是重算派生字段后再写一遍
	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{},
	}))

	progress := f.record(t)
	require.ElementsMatch(t, []uint{f.topic1.ID}, []uint(progress.CompletedTopicIDs))
	require.Empty(t, []uint(progress.CompletedLessonIDs))
}

func TestAdvanceAllOrNothingAcrossLessons(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	// 追加第三课 C，带一个小节 t3
	lessonC := &model.Lesson{CourseID: f.course.ID, Title: "Memory", Order: 3}
	db := f.progressRepo.DB
	require.NoError(t, db.Create(lessonC).Error)
	topic3 := &model.Topic{LessonID: lessonC.ID, Title: "Heap", Order: 1}
	require.NoError(t, db.Create(topic3).Error)

	// t3 能让 C 结课，但 A 还差 t2：整次调用失败，t3 也不落库
	err := f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), ptrUint(topic3.ID)},
		IsLessonCompleted:    true,
	})
	require.ErrorIs(t, err, util.ErrIncompleteDependency)
	require.Nil(t, f.record(t))
}

func TestRetreatCourseLocked(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), ptrUint(f.topic2.ID)},
		IsLessonCompleted:    true,
	}))
	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		StandaloneLessonID: ptrUint(f.lessonB.ID),
		IsLessonCompleted:  true,
	}))
	before := f.record(t)
	require.InDelta(t, 90.0, before.CompletionRate, 1e-9)

	err := f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{
		LessonIDs: []uint{f.lessonA.ID},
	})
	require.ErrorIs(t, err, util.ErrCourseLocked)

	after := f.record(t)
	require.ElementsMatch(t, []uint(before.CompletedLessonIDs), []uint(after.CompletedLessonIDs))
	require.ElementsMatch(t, []uint(before.CompletedTopicIDs), []uint(after.CompletedTopicIDs))
	require.Equal(t, before.CompletionRate, after.CompletionRate)
}

func TestRetreatLessonCascadesTopics(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), ptrUint(f.topic2.ID)},
		IsLessonCompleted:    true,
	}))

	require.NoError(t, f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{
		LessonIDs: []uint{f.lessonA.ID},
	}))

	progress := f.record(t)
	require.Empty(t, []uint(progress.CompletedLessonIDs))
	require.Empty(t, []uint(progress.CompletedTopicIDs))
	require.Equal(t, 0, progress.CompletedLessons)
	require.InDelta(t, 0.0, progress.CompletionRate, 1e-9)
}

func TestRetreatTopicBlockedByCompletedLesson(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), ptrUint(f.topic2.ID)},
		IsLessonCompleted:    true,
	}))
	before := f.record(t)

	err := f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{
		TopicIDs: []uint{f.topic1.ID},
	})
	require.ErrorIs(t, err, util.ErrLessonAlreadyComplete)

	after := f.record(t)
	require.ElementsMatch(t, []uint(before.CompletedTopicIDs), []uint(after.CompletedTopicIDs))
}

func TestRetreatLessonAndTopicInOneCall(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), ptrUint(f.topic2.ID)},
		IsLessonCompleted:    true,
	}))

	// 先回退课再回退小节，同一调用内按 lessonIds -> topicIds 顺序生效
	require.NoError(t, f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{
		LessonIDs: []uint{f.lessonA.ID},
		TopicIDs:  []uint{f.topic1.ID},
	}))

	progress := f.record(t)
	require.Empty(t, []uint(progress.CompletedLessonIDs))
	require.Empty(t, []uint(progress.CompletedTopicIDs))
}

func TestRetreatNoRecord(t *testing.T) {
	f := newProgressFixture(t)

	err := f.svc.Retreat(context.Background(), testUserID, f.course.ID, RetreatRequest{
		TopicIDs: []uint{f.topic1.ID},
	})
	require.ErrorIs(t, err, util.ErrNoProgressRecord)
}

func TestRetreatUnknownIDs(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID)},
	}))

	err := f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{LessonIDs: []uint{99999}})
	require.ErrorIs(t, err, util.ErrUnknownLesson)

	err = f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{TopicIDs: []uint{99999}})
	require.ErrorIs(t, err, util.ErrUnknownTopic)
}

func TestRetreatDoesNotTriggerCertificate(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
		NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), ptrUint(f.topic2.ID)},
		IsLessonCompleted:    true,
	}))
	callsAfterAdvance := len(f.issuer.calls)

	require.NoError(t, f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{
		LessonIDs: []uint{f.lessonA.ID},
	}))

	require.Equal(t, callsAfterAdvance, len(f.issuer.calls))
	// 回退同样要失效缓存
	require.Len(t, f.cache.keys, 2)
}

// 不变量：完成的课，其全部小节必须都在完成集合里；完成率始终在 [0, 90]
func TestInvariantsAfterMixedSequence(t *testing.T) {
	f := newProgressFixture(t)
	ctx := context.Background()

	steps := []func() error{
		func() error {
			return f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
				NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID)},
			})
		},
		func() error {
			return f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
				NewCompletedTopicIDs: []*uint{ptrUint(f.topic2.ID)},
				IsLessonCompleted:    true,
			})
		},
		func() error {
			return f.svc.Retreat(ctx, testUserID, f.course.ID, RetreatRequest{
				LessonIDs: []uint{f.lessonA.ID},
			})
		},
		func() error {
			return f.svc.Advance(ctx, testUserID, f.course.ID, AdvanceRequest{
				NewCompletedTopicIDs: []*uint{ptrUint(f.topic1.ID), ptrUint(f.topic2.ID)},
				IsLessonCompleted:    true,
			})
		},
	}

	structure, err := f.svc.CourseRepo.GetStructure(f.course.ID)
	require.NoError(t, err)

	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)

		progress := f.record(t)
		require.NotNil(t, progress)
		require.GreaterOrEqual(t, progress.CompletionRate, 0.0)
		require.LessOrEqual(t, progress.CompletionRate, model.CompletionRateCeiling)
		require.Equal(t, len(progress.CompletedLessonIDs), progress.CompletedLessons)

		for _, lessonID := range progress.CompletedLessonIDs {
			for _, topicID := range structure.TopicsOfLesson(lessonID) {
				require.True(t, progress.CompletedTopicIDs.Contains(topicID),
					"lesson %d complete but topic %d is not", lessonID, topicID)
			}
		}
	}
}

func TestGetProgressZeroDefault(t *testing.T) {
	f := newProgressFixture(t)

	view, err := f.svc.GetProgress(testUserID, f.course.ID)
	require.NoError(t, err)
	require.Equal(t, f.course.ID, view.CourseID)
	require.Empty(t, view.CompletedLessonIDs)
	require.Empty(t, view.CompletedTopicIDs)
	require.Zero(t, view.CompletedLessons)
	require.Zero(t, view.TotalLessons)
	require.Zero(t, view.TotalTopics)
	require.Zero(t, view.CompletionRate)
}

func TestEnsureEnrolled(t *testing.T) {
	f := newProgressFixture(t)

	err := f.svc.EnsureEnrolled(testUserID, f.course.ID)
	require.ErrorIs(t, err, util.ErrNotEnrolled)

	require.NoError(t, f.progressRepo.DB.Create(&model.Enrollment{
		UserID:   testUserID,
		CourseID: f.course.ID,
	}).Error)

	require.NoError(t, f.svc.EnsureEnrolled(testUserID, f.course.ID))
}
