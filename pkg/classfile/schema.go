package classfile

// classSchema validates YAML class dumps before they are decoded.
const classSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "names": {"type": "array", "items": {"type": "string"}},
    "access": {
      "type": "array",
      "items": {"enum": ["public", "private", "protected", "static", "final", "super",
        "synchronized", "volatile", "bridge", "transient", "varargs", "native",
        "interface", "abstract", "strict", "synthetic", "annotation", "enum",
        "module", "record"]}
    },
    "annotation": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "pattern": "^L.+;$"},
        "values": {"type": "array", "items": {"$ref": "#/$defs/element"}}
      }
    },
    "element": {
      "allOf": [{"$ref": "#/$defs/value"}],
      "required": ["name"],
      "properties": {"name": {"type": "string"}}
    },
    "value": {
      "type": "object",
      "properties": {
        "int": {"type": "integer"},
        "long": {"type": "integer"},
        "float": {"type": "number"},
        "double": {"type": "number"},
        "bool": {"type": "boolean"},
        "string": {"type": "string"},
        "enum": {"type": "string"},
        "constant": {"type": "string"},
        "class": {"type": "string"},
        "annotation": {"$ref": "#/$defs/annotation"},
        "array": {"type": "array", "items": {"$ref": "#/$defs/value"}}
      }
    },
    "annotations": {
      "type": "object",
      "properties": {
        "visible": {"type": "array", "items": {"$ref": "#/$defs/annotation"}},
        "invisible": {"type": "array", "items": {"$ref": "#/$defs/annotation"}},
        "visible_type": {"type": "array", "items": {"$ref": "#/$defs/annotation"}},
        "invisible_type": {"type": "array", "items": {"$ref": "#/$defs/annotation"}}
      },
      "additionalProperties": false
    },
    "handle": {
      "type": "object",
      "required": ["kind", "ref"],
      "properties": {
        "kind": {"enum": ["getfield", "getstatic", "putfield", "putstatic", "invokevirtual",
          "invokestatic", "invokespecial", "newinvokespecial", "invokeinterface"]},
        "ref": {"type": "string"},
        "interface": {"type": "boolean"}
      }
    },
    "dynamic": {
      "type": "object",
      "required": ["name", "descriptor", "bootstrap"],
      "properties": {
        "name": {"type": "string"},
        "descriptor": {"type": "string"},
        "bootstrap": {"$ref": "#/$defs/handle"},
        "args": {"type": "array", "items": {"$ref": "#/$defs/constant"}}
      }
    },
    "constant": {
      "type": "object",
      "minProperties": 1,
      "maxProperties": 1,
      "properties": {
        "int": {"type": "integer"},
        "long": {"type": "integer"},
        "float": {"type": "number"},
        "double": {"type": "number"},
        "string": {"type": "string"},
        "class": {"type": "string"},
        "method_type": {"type": "string"},
        "handle": {"$ref": "#/$defs/handle"},
        "dynamic": {"$ref": "#/$defs/dynamic"}
      },
      "additionalProperties": false
    },
    "frame": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["full", "same", "same1", "append", "chop"]},
        "locals": {"$ref": "#/$defs/names"},
        "stack": {"$ref": "#/$defs/names"},
        "chop": {"type": "integer", "minimum": 0}
      }
    },
    "insn": {
      "type": "object",
      "properties": {
        "label": {"type": "string"},
        "frame": {"$ref": "#/$defs/frame"},
        "op": {"type": "string"},
        "var": {"type": "integer", "minimum": 0},
        "operand": {"type": "integer"},
        "type": {"type": "string"},
        "field": {"type": "string"},
        "method": {"type": "string"},
        "interface": {"type": "boolean"},
        "indy": {"$ref": "#/$defs/dynamic"},
        "const": {"$ref": "#/$defs/constant"},
        "target": {"type": "string"},
        "targets": {"$ref": "#/$defs/names"},
        "keys": {"type": "array", "items": {"type": "integer"}},
        "default": {"type": "string"}
      }
    },
    "code": {
      "type": "object",
      "properties": {
        "max_stack": {"type": "integer", "minimum": 0},
        "max_locals": {"type": "integer", "minimum": 0},
        "insns": {"type": "array", "items": {"$ref": "#/$defs/insn"}},
        "try_catch": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["start", "end", "handler"],
            "properties": {
              "start": {"type": "string"},
              "end": {"type": "string"},
              "handler": {"type": "string"},
              "type": {"type": "string"},
              "annotations": {"$ref": "#/$defs/annotations"}
            }
          }
        },
        "locals": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "descriptor", "index"],
            "properties": {
              "name": {"type": "string"},
              "descriptor": {"type": "string"},
              "signature": {"type": "string"},
              "index": {"type": "integer", "minimum": 0},
              "start": {"type": "string"},
              "end": {"type": "string"}
            }
          }
        },
        "local_annotations": {"$ref": "#/$defs/annotations"}
      }
    },
    "member": {
      "type": "object",
      "required": ["name", "descriptor"],
      "properties": {
        "access": {"$ref": "#/$defs/access"},
        "name": {"type": "string", "minLength": 1},
        "descriptor": {"type": "string", "minLength": 1},
        "signature": {"type": "string"},
        "annotations": {"$ref": "#/$defs/annotations"}
      }
    }
  },
  "type": "object",
  "required": ["name"],
  "properties": {
    "version": {"type": "integer"},
    "access": {"$ref": "#/$defs/access"},
    "name": {"type": "string", "minLength": 1},
    "super": {"type": "string"},
    "interfaces": {"$ref": "#/$defs/names"},
    "signature": {"type": "string"},
    "outer_class": {"type": "string"},
    "nest_host": {"type": "string"},
    "nest_members": {"$ref": "#/$defs/names"},
    "permitted_subclasses": {"$ref": "#/$defs/names"},
    "inner_classes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "outer": {"type": "string"},
          "simple": {"type": "string"},
          "access": {"$ref": "#/$defs/access"}
        }
      }
    },
    "annotations": {"$ref": "#/$defs/annotations"},
    "record_components": {"type": "array", "items": {"$ref": "#/$defs/member"}},
    "fields": {
      "type": "array",
      "items": {
        "allOf": [{"$ref": "#/$defs/member"}],
        "properties": {"value": {"$ref": "#/$defs/constant"}}
      }
    },
    "methods": {
      "type": "array",
      "items": {
        "allOf": [{"$ref": "#/$defs/member"}],
        "properties": {
          "exceptions": {"$ref": "#/$defs/names"},
          "annotation_default": {"$ref": "#/$defs/value"},
          "parameter_annotations": {
            "type": "object",
            "properties": {
              "visible": {"type": "array", "items": {"type": "array", "items": {"$ref": "#/$defs/annotation"}}},
              "invisible": {"type": "array", "items": {"type": "array", "items": {"$ref": "#/$defs/annotation"}}}
            }
          },
          "code": {"$ref": "#/$defs/code"}
        }
      }
    }
  }
}`
