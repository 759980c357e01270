package fs2

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// OOMEvent reports a transition observed on memory.events.
type OOMEvent struct {
	// OOMKill is the cumulative oom_kill counter; a new event fires
	// whenever this increases (§4.2's "OOM notifier").
	OOMKill uint64
}

// OOMListener watches dirPath/memory.events via epoll and reports oom_kill
// increments on the returned channel until ctx-less Close is called.
type OOMListener struct {
	epfd    int
	file    *os.File
	dirPath string
	last    uint64
	events  chan OOMEvent
	done    chan struct{}
}

// NewOOMListener opens an epoll watch on m's memory.events file.
func (m *Manager) NewOOMListener() (*OOMListener, error) {
	f, err := os.Open(m.dirPath + "/memory.events")
	if err != nil {
		return nil, fmt.Errorf("open memory.events: %w", err)
	}
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(f.Fd())}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, int(f.Fd()), &ev); err != nil {
		f.Close()
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl: %w", err)
	}
	l := &OOMListener{
		epfd:    epfd,
		file:    f,
		dirPath: m.dirPath,
		events:  make(chan OOMEvent, 1),
		done:    make(chan struct{}),
	}
	go l.loop()
	return l, nil
}

func (l *OOMListener) Events() <-chan OOMEvent { return l.events }

func (l *OOMListener) Close() error {
	close(l.done)
	unix.Close(l.epfd)
	return l.file.Close()
}

func (l *OOMListener) loop() {
	defer close(l.events)
	events := make([]unix.EpollEvent, 4)
	for {
		select {
		case <-l.done:
			return
		default:
		}
		n, err := unix.EpollWait(l.epfd, events, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}
		count, err := readOOMKillCount(l.dirPath)
		if err != nil {
			continue
		}
		if count > l.last {
			l.last = count
			select {
			case l.events <- OOMEvent{OOMKill: count}:
			case <-l.done:
				return
			}
		}
	}
}

func readOOMKillCount(dirPath string) (uint64, error) {
	f, err := os.Open(dirPath + "/memory.events")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) != 2 {
			continue
		}
		if fields[0] == "oom_kill" {
			return strconv.ParseUint(fields[1], 10, 64)
		}
	}
	return 0, s.Err()
}
