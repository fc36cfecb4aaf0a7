package sandbox

// harness runs one case. The submitted code is exec'd in a fresh namespace,
// main(*input) is called with stdout captured, and the trimmed output is
// compared with str(expected).
const harness = `import io, json, sys, traceback
from contextlib import redirect_stdout

req = json.load(sys.stdin)
args = req.get("input")
if args is None:
    args = []
elif not isinstance(args, list):
    args = [args]
expected = str(req.get("expected")).strip()
shown = "\n".join(map(str, args))
buf = io.StringIO()
reply = {"expected": expected}
try:
    ns = {"__name__": "solution"}
    with redirect_stdout(buf):
        exec(req.get("code", ""), ns)
        fn = ns.get("main")
        if not callable(fn):
            raise NameError('function "main" is not defined')
        fn(*args)
    actual = buf.getvalue().strip()
    reply["actual"] = actual
    reply["status"] = "success" if actual == expected else "failure"
    reply["message"] = "Input:\n%s\n\nExpected output:\n%s\n\nActual output:\n%s" % (shown, expected, actual)
except BaseException as exc:
    reply["actual"] = buf.getvalue().strip()
    reply["status"] = "error"
    reply["message"] = "Error during execution:\n\n%s\n%s" % (exc, traceback.format_exc())
sys.__stdout__.write(json.dumps(reply, ensure_ascii=False))
`
