// Package notify delivers leave notices to students and staff.
//
// Implementations satisfy leave.Notifier. Console is the default and only
// writes to the log; SendGrid emails the student when an address is known.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/studio/leave-engine/leave"
)

var (
	_ leave.Notifier = Nop{}
	_ leave.Notifier = (*Console)(nil)
	_ leave.Notifier = (*SendGrid)(nil)
)

// Nop discards notices.
type Nop struct{}

func (Nop) Notify(context.Context, leave.Notice) error { return nil }

// Console writes notices to a zerolog logger.
type Console struct {
	loc *time.Location
	log zerolog.Logger
}

func NewConsole(loc *time.Location, log zerolog.Logger) *Console {
	return &Console{loc: loc, log: log.With().Str("component", "notify").Logger()}
}

func (c *Console) Notify(_ context.Context, n leave.Notice) error {
	subject, body := Render(n, c.loc)
	c.log.Info().
		Str("event", string(n.Event)).
		Str("request_id", n.Request.ID).
		Str("student_id", n.Request.StudentID).
		Str("to", n.Student.Email).
		Str("subject", subject).
		Str("body", body).
		Msg("leave notice")
	return nil
}

// Render builds the subject and plain-text body of a notice. Lesson times
// are shown in loc.
func Render(n leave.Notice, loc *time.Location) (subject, body string) {
	if loc == nil {
		loc = time.UTC
	}
	name := n.Student.NickName
	if name == "" {
		name = n.Student.FullName
	}
	lessonAt := n.Request.LessonDate.In(loc).Format("2006-01-02 15:04")
	kind := "事假"
	if n.Request.LeaveType == leave.LeaveSick {
		kind = "病假"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s 你好，\n\n", name)

	switch {
	case n.Event == leave.NoticeSubmitted && n.Request.Status == leave.StatusPending:
		subject = "請假申請已收到"
		fmt.Fprintf(&b, "你於 %s 的課堂%s申請已收到，正在等待審核。\n", lessonAt, kind)
	case n.Request.Status == leave.StatusApproved:
		subject = "請假申請已批准"
		fmt.Fprintf(&b, "你於 %s 的課堂%s申請已批准。\n", lessonAt, kind)
	case n.Request.Status == leave.StatusRejected:
		subject = "請假申請未獲批准"
		fmt.Fprintf(&b, "你於 %s 的課堂%s申請未獲批准。\n", lessonAt, kind)
		if n.Request.RejectionReason != "" {
			fmt.Fprintf(&b, "原因：%s\n", n.Request.RejectionReason)
		}
	default:
		subject = "請假申請更新"
		fmt.Fprintf(&b, "你於 %s 的課堂%s申請狀態：%s\n", lessonAt, kind, n.Request.Status)
	}
	if n.Request.ReviewNotes != "" {
		fmt.Fprintf(&b, "備註：%s\n", n.Request.ReviewNotes)
	}
	return subject, b.String()
}
