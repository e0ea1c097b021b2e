package alert

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/upsidelab/physionet-build/dao/model"
)

type alertMgr struct {
	handler alertHandlerInterface
}

var (
	once    sync.Once
	alerter *alertMgr
)

func GetAlertMgr() AlertInterface {
	once.Do(func() {
		alerter = initAlertMgr()
	})
	return alerter
}

func initAlertMgr() *alertMgr {
	return &alertMgr{
		handler: newSMTPAlerter(),
	}
}

const accessExpiredSubject = "Your research environment access has expired"

const accessExpiredTemplate = `Dear %s,

Your access to the following projects has expired:

%s

The research environments you were running against them have been
stopped. Unless your access is restored, they will be terminated after
the grace period, together with any data stored on them.
`

func (a *alertMgr) EnvironmentAccessExpired(ctx context.Context, user *model.User, projects []model.PublishedProject) error {
	titles := make([]string, 0, len(projects))
	for i := range projects {
		titles = append(titles, fmt.Sprintf("  - %s (%s)", projects[i].Title, projects[i].Slug))
	}
	body := fmt.Sprintf(accessExpiredTemplate, user.FirstNames, strings.Join(titles, "\n"))
	return a.handler.SendMessageTo(ctx, user.Email, accessExpiredSubject, body)
}
