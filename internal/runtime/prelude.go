package runtime

// preludeSource is loaded into every runtime before user code runs. It
// implements the fetch-style Web primitives (Headers, Request, Response,
// URL, URLSearchParams, TextDecoder) in plain JS on top of a handful of
// native bindings the Go side installs — the same split the teacher uses
// for its devpack runtime: a JS-level API surface wired to a thin native
// core.
const preludeSource = `
class TextDecoder {
  decode(bytes) {
    if (!bytes) return "";
    var arr = Array.isArray(bytes) ? bytes : Array.from(bytes);
    var out = "";
    var i = 0;
    while (i < arr.length) {
      var c = arr[i++];
      if (c < 0x80) {
        out += String.fromCharCode(c);
      } else if (c < 0xE0) {
        var c1 = arr[i++];
        out += String.fromCharCode(((c & 0x1F) << 6) | (c1 & 0x3F));
      } else if (c < 0xF0) {
        var c1 = arr[i++], c2 = arr[i++];
        out += String.fromCharCode(((c & 0x0F) << 12) | ((c1 & 0x3F) << 6) | (c2 & 0x3F));
      } else {
        var c1 = arr[i++], c2 = arr[i++], c3 = arr[i++];
        var cp = ((c & 0x07) << 18) | ((c1 & 0x3F) << 12) | ((c2 & 0x3F) << 6) | (c3 & 0x3F);
        cp -= 0x10000;
        out += String.fromCharCode(0xD800 + (cp >> 10), 0xDC00 + (cp & 0x3FF));
      }
    }
    return out;
  }
}

class Headers {
  constructor(init) {
    this._map = {};
    if (init) {
      if (init instanceof Headers) {
        for (var k in init._map) this._map[k] = init._map[k];
      } else if (Array.isArray(init)) {
        for (var i = 0; i < init.length; i++) this.set(init[i][0], init[i][1]);
      } else {
        for (var k2 in init) this.set(k2, init[k2]);
      }
    }
  }
  set(name, value) { this._map[String(name).toLowerCase()] = String(value); }
  get(name) { var v = this._map[String(name).toLowerCase()]; return v === undefined ? null : v; }
  has(name) { return Object.prototype.hasOwnProperty.call(this._map, String(name).toLowerCase()); }
  delete(name) { delete this._map[String(name).toLowerCase()]; }
  forEach(fn) { for (var k in this._map) fn(this._map[k], k, this); }
  entries() {
    var out = [];
    for (var k in this._map) out.push([k, this._map[k]]);
    return out;
  }
}

class URLSearchParams {
  constructor(init) {
    this._pairs = [];
    if (typeof init === "string") {
      var s = init.charAt(0) === "?" ? init.substring(1) : init;
      if (s.length > 0) {
        var parts = s.split("&");
        for (var i = 0; i < parts.length; i++) {
          var kv = parts[i].split("=");
          this._pairs.push([decodeURIComponent(kv[0]), decodeURIComponent(kv[1] || "")]);
        }
      }
    }
  }
  get(name) {
    for (var i = 0; i < this._pairs.length; i++) if (this._pairs[i][0] === name) return this._pairs[i][1];
    return null;
  }
  getAll(name) {
    var out = [];
    for (var i = 0; i < this._pairs.length; i++) if (this._pairs[i][0] === name) out.push(this._pairs[i][1]);
    return out;
  }
  has(name) { return this.get(name) !== null; }
  append(name, value) {
    this._pairs.push([name, String(value)]);
    if (this._url) this._url._update();
  }
  toString() {
    return this._pairs.map(function(p) { return encodeURIComponent(p[0]) + "=" + encodeURIComponent(p[1]); }).join("&");
  }
}

class URL {
  constructor(input) {
    var m = /^([a-zA-Z][a-zA-Z0-9+.-]*):\/\/([^\/\?#]*)([^\?#]*)(\?[^#]*)?(#.*)?$/.exec(input);
    if (!m) throw new TypeError("invalid URL: " + input);
    this.protocol = m[1] + ":";
    this.host = m[2];
    this.hostname = m[2];
    this.pathname = m[3] || "/";
    this.search = m[4] || "";
    this.hash = m[5] || "";
    this.href = input;
    this.searchParams = new URLSearchParams(this.search);
    this.searchParams._url = this;
  }
  _update() {
    var q = this.searchParams.toString();
    this.search = q.length > 0 ? "?" + q : "";
    this.href = this.protocol + "//" + this.host + this.pathname + this.search + this.hash;
  }
  toString() { return this.href; }
}

class Request {
  constructor(input, init) {
    init = init || {};
    if (input instanceof Request) {
      this.url = input.url;
      this.method = input.method;
      this.headers = new Headers(input.headers);
      this._body = input._body;
    } else {
      this.url = String(input);
      this.method = (init.method || "GET").toUpperCase();
      this.headers = new Headers(init.headers);
      this._body = init.body === undefined ? null : init.body;
    }
    if (init.method) this.method = init.method.toUpperCase();
    if (init.headers) this.headers = new Headers(init.headers);
    if (init.body !== undefined) this._body = init.body;
  }
  text() { return Promise.resolve(this._body === null ? "" : String(this._body)); }
  json() { return Promise.resolve(this._body === null ? null : JSON.parse(this._body)); }
}

class Response {
  constructor(body, init) {
    init = init || {};
    this._body = body === undefined ? null : body;
    this.status = init.status === undefined ? 200 : init.status;
    this.statusText = init.statusText || "";
    this.headers = new Headers(init.headers);
    this.ok = this.status >= 200 && this.status < 300;
  }
  text() { return Promise.resolve(this._body === null ? "" : String(this._body)); }
  json() { return Promise.resolve(this._body === null ? null : JSON.parse(this._body)); }
}

var console = {
  log: function() { __jstz_host_debug(Array.prototype.slice.call(arguments).join(" ")); },
  info: function() { __jstz_host_debug(Array.prototype.slice.call(arguments).join(" ")); },
  warn: function() { __jstz_host_debug(Array.prototype.slice.call(arguments).join(" ")); },
  error: function() { __jstz_host_debug(Array.prototype.slice.call(arguments).join(" ")); }
};

var Kv = {
  get: function(key) { return __jstz_kv_get(key); },
  set: function(key, value) { return __jstz_kv_set(key, value); },
  has: function(key) { return __jstz_kv_has(key); },
  delete: function(key) { return __jstz_kv_delete(key); }
};

var Ledger = {
  balance: function(address) { return __jstz_ledger_balance(address); }
};

var SmartFunction = {
  call: function(request) { return __jstz_fetch(request); }
};

function fetch(request) {
  if (!(request instanceof Request)) request = new Request(request);
  return __jstz_fetch(request);
}
`
