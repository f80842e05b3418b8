package model

// Course 课程，内容侧负责增删改，本服务只读
type Course struct {
	BaseModel
	Title       string   `gorm:"size:255;not null" json:"title"`
	Slug        string   `gorm:"size:255;uniqueIndex" json:"slug"`
	Description string   `gorm:"type:text" json:"description"`
	CoverURL    string   `gorm:"size:255" json:"coverUrl"`
	Published   bool     `gorm:"default:false" json:"published"`
	Lessons     []Lesson `gorm:"foreignKey:CourseID" json:"lessons,omitempty"`
}

func (Course) TableName() string {
	return "courses"
}

type Lesson struct {
	BaseModel
	CourseID uint    `gorm:"index;type:bigint unsigned" json:"courseId"`
	Title    string  `gorm:"size:255;not null" json:"title"`
	Order    int     `gorm:"default:0" json:"order"`
	Topics   []Topic `gorm:"foreignKey:LessonID" json:"topics,omitempty"`
}

func (Lesson) TableName() string {
	return "lessons"
}

type Topic struct {
	BaseModel
	LessonID uint   `gorm:"index;type:bigint unsigned" json:"lessonId"`
	Title    string `gorm:"size:255;not null" json:"title"`
	Order    int    `gorm:"default:0" json:"order"`
}

func (Topic) TableName() string {
	return "topics"
}

// CourseStructure 课程结构的只读投影（课 -> 小节），进度引擎校验用
type CourseStructure struct {
	CourseID    uint             `json:"courseId"`
	Lessons     []LessonOutline  `json:"lessons"`
	topicOwner  map[uint]uint    // topicID -> lessonID
	lessonIndex map[uint]int     // lessonID -> Lessons 下标
}

type LessonOutline struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	TopicIDs []uint `json:"topicIds"`
}

func NewCourseStructure(course *Course) *CourseStructure {
	cs := &CourseStructure{
		CourseID:    course.ID,
		Lessons:     make([]LessonOutline, 0, len(course.Lessons)),
		topicOwner:  make(map[uint]uint),
		lessonIndex: make(map[uint]int),
	}
	for i, lesson := range course.Lessons {
		outline := LessonOutline{ID: lesson.ID, Title: lesson.Title}
		for _, topic := range lesson.Topics {
			outline.TopicIDs = append(outline.TopicIDs, topic.ID)
			cs.topicOwner[topic.ID] = lesson.ID
		}
		cs.Lessons = append(cs.Lessons, outline)
		cs.lessonIndex[lesson.ID] = i
	}
	return cs
}

func (cs *CourseStructure) TotalLessons() int {
	return len(cs.Lessons)
}

func (cs *CourseStructure) TotalTopics() int {
	return len(cs.topicOwner)
}

func (cs *CourseStructure) HasLesson(lessonID uint) bool {
	_, ok := cs.lessonIndex[lessonID]
	return ok
}

func (cs *CourseStructure) HasTopic(topicID uint) bool {
	_, ok := cs.topicOwner[topicID]
	return ok
}

// OwnerOfTopic 返回小节所属课的 ID，第二个返回值表示该小节是否属于本课程
func (cs *CourseStructure) OwnerOfTopic(topicID uint) (uint, bool) {
	lessonID, ok := cs.topicOwner[topicID]
	return lessonID, ok
}

// TopicsOfLesson 返回课下所有小节 ID；standalone 课返回空切片
func (cs *CourseStructure) TopicsOfLesson(lessonID uint) []uint {
	i, ok := cs.lessonIndex[lessonID]
	if !ok {
		return nil
	}
	return cs.Lessons[i].TopicIDs
}
