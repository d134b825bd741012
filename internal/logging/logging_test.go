package logging

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/nhle/mail-autoreply/internal/model"
)

func TestLogErrorFields(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	LogError("send_failed", errors.New("smtp: 550"), logrus.Fields{"message_id": "m1"})

	entry := hook.LastEntry()
	be.True(t, entry != nil)
	be.Equal(t, entry.Level, logrus.ErrorLevel)
	be.Equal(t, entry.Data["error_type"], any("send_failed"))
	be.Equal(t, entry.Data["error"], any("smtp: 550"))
	be.Equal(t, entry.Data["message_id"], any("m1"))
}

func TestLogEventFields(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	LogEvent("cycle_done", logrus.Fields{"replied": 2})

	entry := hook.LastEntry()
	be.True(t, entry != nil)
	be.Equal(t, entry.Level, logrus.InfoLevel)
	be.Equal(t, entry.Data["event_type"], any("cycle_done"))
	be.Equal(t, entry.Data["replied"], any(2))
}

func TestLogWarningLevel(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	LogWarning("notify_failed", errors.New("401"), nil)

	be.Equal(t, hook.LastEntry().Level, logrus.WarnLevel)
}

func TestSetupRejectsBadLevel(t *testing.T) {
	_, err := Setup(model.LogConfig{Level: "loud"}, model.SentryConfig{}, false)
	be.True(t, err != nil)
}

func TestSetupFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "autoreply.log")
	cleanup, err := Setup(model.LogConfig{Level: "debug", File: path}, model.SentryConfig{}, true)
	be.Err(t, err, nil)
	t.Cleanup(func() {
		cleanup()
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	})

	be.Equal(t, logrus.GetLevel(), logrus.DebugLevel)
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	be.True(t, isJSON)
}
