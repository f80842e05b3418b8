package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUintSetAddIsIdempotent(t *testing.T) {
	s := UintSet{}
	s = s.Add(1)
	s = s.Add(2)
	s = s.Add(1)
	require.Equal(t, UintSet{1, 2}, s)
}

func TestUintSetRemove(t *testing.T) {
	s := UintSet{1, 2, 3}
	s = s.Remove(2)
	require.Equal(t, UintSet{1, 3}, s)
	s = s.Remove(99)
	require.Equal(t, UintSet{1, 3}, s)
}

func TestUintSetCloneIsIndependent(t *testing.T) {
	s := UintSet{1, 2}
	c := s.Clone()
	c = c.Add(3)
	require.Equal(t, UintSet{1, 2}, s)
	require.Equal(t, UintSet{1, 2, 3}, c)
}

func TestUintSetScanValue(t *testing.T) {
	v, err := UintSet{1, 2}.Value()
	require.NoError(t, err)

	var s UintSet
	require.NoError(t, s.Scan(v))
	require.Equal(t, UintSet{1, 2}, s)

	var fromString UintSet
	require.NoError(t, fromString.Scan("[3,4]"))
	require.Equal(t, UintSet{3, 4}, fromString)

	var fromNil UintSet
	require.NoError(t, fromNil.Scan(nil))
	require.Empty(t, fromNil)
}

func TestCourseStructureProjection(t *testing.T) {
	course := &Course{
		BaseModel: BaseModel{ID: 1},
		Lessons: []Lesson{
			{BaseModel: BaseModel{ID: 10}, Topics: []Topic{
				{BaseModel: BaseModel{ID: 100}},
				{BaseModel: BaseModel{ID: 101}},
			}},
			{BaseModel: BaseModel{ID: 11}},
		},
	}

	cs := NewCourseStructure(course)
	require.Equal(t, 2, cs.TotalLessons())
	require.Equal(t, 2, cs.TotalTopics())
	require.True(t, cs.HasLesson(10))
	require.False(t, cs.HasLesson(99))
	require.True(t, cs.HasTopic(101))
	require.False(t, cs.HasTopic(999))

	owner, ok := cs.OwnerOfTopic(100)
	require.True(t, ok)
	require.Equal(t, uint(10), owner)

	require.Equal(t, []uint{100, 101}, cs.TopicsOfLesson(10))
	// standalone 课没有小节
	require.Empty(t, cs.TopicsOfLesson(11))
}
