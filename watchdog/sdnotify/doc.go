/*
Package sdnotify implements the sending side of the systemd service notification protocol, which a supervised process uses to report readiness and liveness to its supervisor.

The supervisor passes the address of a datagram socket in the NOTIFY_SOCKET environment variable. Addresses that start with '@' live in the Linux abstract socket namespace, and are translated to a leading NUL byte before dialing.

Each notification is a single datagram containing newline-separated KEY=VALUE assignments. This package only sends the fixed tokens the watchdog needs (READY=1 and WATCHDOG=1), and never reads from the socket: the supervisor does not reply.

Unlike daemon.SdNotify from go-systemd, a Conn keeps its socket open between sends, so that forwarding can be switched on and off explicitly and the socket is only re-resolved when it is re-opened.

If the supervisor also sets WATCHDOG_USEC, it expects a WATCHDOG=1 at least that often. PingInterval derives the self-check period from it.
*/
package sdnotify
