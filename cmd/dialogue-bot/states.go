package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/godialogue/core/dialogue"
	"github.com/m3rciful/godialogue/core/telegram/format"

	tele "gopkg.in/telebot.v4"
)

type transition = dialogue.Transition[dialogue.State]

type start struct{}

type receiveFullName struct{}

type receiveAge struct {
	FullName string `json:"full_name" yaml:"full_name"`
}

type receiveFavouriteMusic struct {
	FullName string `json:"full_name" yaml:"full_name"`
	Age      uint8  `json:"age" yaml:"age"`
}

func (start) StateName() string                 { return "start" }
func (receiveFullName) StateName() string       { return "receive_full_name" }
func (receiveAge) StateName() string            { return "receive_age" }
func (receiveFavouriteMusic) StateName() string { return "receive_favourite_music" }

// music is the closed set of answers offered on the reply keyboard.
var music = []string{"Rock", "Metal", "Pop", "Other"}

func musicKeyboard() *tele.ReplyMarkup {
	kb := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	row := make([]tele.Btn, 0, len(music))
	for _, m := range music {
		row = append(row, kb.Text(m))
	}
	kb.Reply(kb.Row(row...))
	return kb
}

func parseMusic(s string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, m := range music {
		if strings.EqualFold(m, s) {
			return m, true
		}
	}
	return "", false
}

func stay(c tele.Context, s dialogue.State, reply string, opts ...interface{}) (transition, error) {
	if err := c.Send(reply, opts...); err != nil {
		return transition{}, err
	}
	return dialogue.Next[dialogue.State](s), nil
}

func newMachine() *dialogue.Machine[dialogue.State, tele.Context] {
	m := dialogue.NewMachine[dialogue.State, tele.Context](start{})
	dialogue.MustOn(m, onStart)
	dialogue.MustOn(m, onFullName)
	dialogue.MustOn(m, onAge)
	dialogue.MustOn(m, onFavouriteMusic)
	return m
}

func onStart(_ context.Context, _ start, c tele.Context) (transition, error) {
	return stay(c, receiveFullName{}, "Let's start! What's your full name?")
}

func onFullName(_ context.Context, s receiveFullName, c tele.Context) (transition, error) {
	name := strings.TrimSpace(c.Text())
	if name == "" {
		return stay(c, s, "Send me your full name as text, please.")
	}
	return stay(c, receiveAge{FullName: name}, "How old are you?")
}

func onAge(_ context.Context, s receiveAge, c tele.Context) (transition, error) {
	age, err := strconv.ParseUint(strings.TrimSpace(c.Text()), 10, 8)
	if err != nil {
		return stay(c, s, "Send me a number.")
	}
	return stay(c, receiveFavouriteMusic{FullName: s.FullName, Age: uint8(age)},
		"Good. Now choose your favourite music:", musicKeyboard())
}

func onFavouriteMusic(_ context.Context, s receiveFavouriteMusic, c tele.Context) (transition, error) {
	choice, ok := parseMusic(c.Text())
	if !ok {
		return stay(c, s, "Please, choose from the keyboard.", musicKeyboard())
	}
	if err := c.Send(summary(s, choice), &tele.SendOptions{
		ParseMode:   format.ParseMode,
		ReplyMarkup: &tele.ReplyMarkup{RemoveKeyboard: true},
	}); err != nil {
		return transition{}, err
	}
	return dialogue.End[dialogue.State](), nil
}

func summary(s receiveFavouriteMusic, choice string) string {
	return fmt.Sprintf("Your full name: %s, your age: %s, your favourite music: %s",
		format.Bold(format.Escape(s.FullName)),
		format.Bold(strconv.Itoa(int(s.Age))),
		format.Bold(format.Escape(choice)),
	)
}
