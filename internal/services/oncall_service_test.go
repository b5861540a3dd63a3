package services

import (
	"testing"
	"time"

	"alertd/internal/models"

	"github.com/stretchr/testify/assert"
)

func timeptr(t time.Time) *time.Time { return &t }

func TestOnCallCoversDateRange(t *testing.T) {
	o := &models.OnCall{
		StartDate: timeptr(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)),
		EndDate:   timeptr(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)),
	}

	assert.True(t, onCallCovers(o, tuesdayAfternoon))
	assert.True(t, onCallCovers(o, time.Date(2024, 3, 8, 23, 0, 0, 0, time.UTC)), "end date is inclusive")
	assert.False(t, onCallCovers(o, time.Date(2024, 3, 9, 0, 30, 0, 0, time.UTC)))
	assert.False(t, onCallCovers(o, time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)))
}

func TestOnCallCoversTimeOfDay(t *testing.T) {
	o := &models.OnCall{
		StartDate: timeptr(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)),
		EndDate:   timeptr(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)),
		StartTime: strptr("09:00"),
		EndTime:   strptr("17:00"),
	}

	assert.True(t, onCallCovers(o, tuesdayAfternoon))
	assert.False(t, onCallCovers(o, time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC)))
	assert.False(t, onCallCovers(o, time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)))
}

func TestOnCallCoversListRecurrence(t *testing.T) {
	list := "list"

	o := &models.OnCall{RepeatType: &list, RepeatDays: []string{"Tue"}}
	assert.True(t, onCallCovers(o, tuesdayAfternoon))

	o.RepeatDays = []string{"Sat", "Sun"}
	assert.False(t, onCallCovers(o, tuesdayAfternoon))

	_, week := tuesdayAfternoon.ISOWeek()
	o = &models.OnCall{RepeatType: &list, RepeatWeeks: []int{week}}
	assert.True(t, onCallCovers(o, tuesdayAfternoon))

	o.RepeatWeeks = []int{week + 1}
	assert.False(t, onCallCovers(o, tuesdayAfternoon))

	o = &models.OnCall{RepeatType: &list, RepeatMonths: []string{"Mar"}}
	assert.True(t, onCallCovers(o, tuesdayAfternoon))

	o.RepeatMonths = []string{"Dec"}
	assert.False(t, onCallCovers(o, tuesdayAfternoon))

	// all three lists must agree
	o = &models.OnCall{
		RepeatType:   &list,
		RepeatDays:   []string{"Tue"},
		RepeatWeeks:  []int{week},
		RepeatMonths: []string{"Mar"},
	}
	assert.True(t, onCallCovers(o, tuesdayAfternoon))
}

func TestOnCallCoversNeitherForm(t *testing.T) {
	assert.False(t, onCallCovers(&models.OnCall{}, tuesdayAfternoon))

	// a date range alone is not a recurrence
	once := "once"
	o := &models.OnCall{RepeatType: &once, RepeatDays: []string{"Tue"}}
	assert.False(t, onCallCovers(o, tuesdayAfternoon))
}

func TestGroupTargetsPairByIndex(t *testing.T) {
	g := &models.NotificationGroup{
		PhoneNumbers: []string{"+111", "+222"},
		Mails:        []string{"a@example.com", "b@example.com", "c@example.com"},
	}
	targets := groupTargets(g)
	assert.Equal(t, []models.NotificationInfo{
		{PhoneNumber: "+111", Mail: "a@example.com"},
		{PhoneNumber: "+222", Mail: "b@example.com"},
		{Mail: "c@example.com"},
	}, targets)
}

func TestDedupeTargets(t *testing.T) {
	targets := []models.NotificationInfo{
		{PhoneNumber: "+111", Mail: "a@example.com"},
		{PhoneNumber: "+111", Mail: "a@example.com"},
		{Mail: "b@example.com"},
	}
	assert.Len(t, dedupeTargets(targets), 2)
}

func TestUserTarget(t *testing.T) {
	u := &models.User{Email: "ops@example.com"}
	assert.Equal(t, models.NotificationInfo{Mail: "ops@example.com"}, userTarget(u))

	u.PhoneNumber = strptr("+3531234567")
	assert.Equal(t, models.NotificationInfo{PhoneNumber: "+3531234567", Mail: "ops@example.com"}, userTarget(u))
}
