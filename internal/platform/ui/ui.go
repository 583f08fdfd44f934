package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
)

var (
	multi    *pterm.MultiPrinter
	spinners = make(map[int]*pterm.SpinnerPrinter)
	mu       sync.Mutex
)

func StartUISystem() {
	m, _ := pterm.DefaultMultiPrinter.Start()
	multi = m
}

func StopUISystem() {
	if multi != nil {
		multi.Stop()
	}
}

func UpdateStatus(view model.SessionView, status string, remainingDelay time.Duration) {
	mu.Lock()
	defer mu.Unlock()

	if multi == nil {
		return
	}

	user := "-"
	if view.UserID != 0 {
		user = fmt.Sprintf("%d", view.UserID)
	}
	proxy := view.Proxy
	if proxy == "" {
		proxy = "direct"
	}

	content := fmt.Sprintf(`
=============== %s ================
User ID  : %s
Proxy    : %s

Phase    : %s
Energy   : %d / %d
Coins    : %d (total %d)
Income   : %d/h
Taps     : %d
Upgrades : %d
Tasks    : %d

Status   : %s
Delay    : %s
===========================================`,
		view.Name,
		user,
		proxy,
		view.Phase,
		view.Energy,
		view.MaxEnergy,
		view.Coins,
		view.TotalCoins,
		view.IncomePerHour,
		view.TapsSent,
		view.Upgrades,
		view.TasksDone,
		status,
		FormatDelay(remainingDelay))

	if spinner, ok := spinners[view.AccIdx]; ok {
		spinner.UpdateText(content)
	} else {
		spinner, _ := pterm.DefaultSpinner.
			WithWriter(multi.NewWriter()).
			WithRemoveWhenDone(false).
			Start(content)
		spinners[view.AccIdx] = spinner
	}
}

func SetSpinnerSuccess(view model.SessionView, finalMessage string) {
	mu.Lock()
	spinner, ok := spinners[view.AccIdx]
	mu.Unlock()
	if ok {
		UpdateStatus(view, finalMessage, 0)
		spinner.Success()
	}
}

func SetSpinnerError(view model.SessionView, finalMessage string) {
	mu.Lock()
	spinner, ok := spinners[view.AccIdx]
	mu.Unlock()
	if ok {
		UpdateStatus(view, finalMessage, 0)
		spinner.Fail()
	}
}

func FormatDelay(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d H %02d M %02d S", h, m, s)
}
