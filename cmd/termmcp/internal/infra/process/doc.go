// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides abstractions for external process execution and
inter-process synchronization.

# Overview

This package contains two main components:

  - Manager: Abstracts process execution, signalling and socket inspection
  - ProcessLocker: File-based locking to prevent concurrent CLI instances

# Manager

Manager is the only path from termmcp to the operating system's process
table. Every exec.Command, kill(2) and lsof call goes through it so the
lifecycle code can be tested with MockManager.

	pm := process.NewDefaultManager()
	pid, err := pm.StartDetached(ctx, process.Spec{
	    Name:    "venv/bin/python",
	    Args:    []string{"server.py"},
	    LogPath: "logs/server.log",
	})

Detached children are placed in their own process group so that SIGTERM
reaches the server and anything it forked.

For testing, use MockManager:

	mock := &process.MockManager{
	    IsAliveFunc: func(pid int) bool { return pid == 4242 },
	}

# ProcessLocker

ProcessLocker prevents two mutating termmcp invocations (start in one
terminal, stop in another) from interleaving. Uses flock(2).

	lock := process.NewProcessLock(process.DefaultProcessLockConfig())
	if err := lock.Acquire(); err != nil {
	    return err
	}
	defer lock.Release()

# Thread Safety

  - Manager implementations are safe for concurrent use
  - ProcessLocker is NOT safe for concurrent use from multiple goroutines

# Limitations

  - Unix only: liveness and signalling use kill(2)
  - ListeningPorts requires lsof in PATH
  - ProcessLocker uses advisory locks
*/
package process
