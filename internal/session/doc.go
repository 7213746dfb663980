// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives one interactive chat: it owns the active session's
// context, turns each input line into a chat turn or a command, and decides
// when to persist, back up and summarize.
//
// # States
//
//	Idle ──<name>──▶ Active(name) ──/exit, EOF──▶ Closed
//	  ▲                   │
//	  └──/delete (self)───┘
//
// At the Idle prompt the input is a session name. "<name> /delete" removes a
// session without opening it.
//
// # Context Precedence
//
// A session resumes from its memory block when one exists, else from its
// history. After /summarize the memory block is the whole context and the
// history file is emptied (a backup is taken first). The first successful
// turn after that writes [memory, user, assistant] back to history and
// clears the memory file, so later turns are never lost on reload.
//
// # Usage
//
//	ctrl := session.NewController(store, client, out, session.Options{Logger: logger})
//	if err := ctrl.Open("work"); err != nil {
//	    return err
//	}
//	for !ctrl.Closed() {
//	    line, err := readLine()
//	    if err != nil {
//	        ctrl.Close()
//	        break
//	    }
//	    if err := ctrl.Handle(ctx, line); err != nil {
//	        printError(err)
//	    }
//	}
//
// A Controller is not safe for concurrent use. The REPL calls it from one
// goroutine and a chat turn finishes before the next line is read.
package session
